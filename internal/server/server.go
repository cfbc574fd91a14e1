package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/testbay/testbay/internal/config"
	evaluationdomain "github.com/testbay/testbay/internal/evaluation/domain"
	"github.com/testbay/testbay/internal/identity"
	invitationdomain "github.com/testbay/testbay/internal/invitation/domain"
	obslogger "github.com/testbay/testbay/internal/observability/logger"
	obsmetrics "github.com/testbay/testbay/internal/observability/metrics"
	obstracing "github.com/testbay/testbay/internal/observability/tracing"
	projectdomain "github.com/testbay/testbay/internal/project/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware())
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	identitySvc   identity.Service
	projectSvc    projectdomain.Service
	evaluationSvc evaluationdomain.Service
	invitationSvc invitationdomain.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	IdentitySvc   identity.Service
	ProjectSvc    projectdomain.Service
	EvaluationSvc evaluationdomain.Service
	InvitationSvc invitationdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		identitySvc:   p.IdentitySvc,
		projectSvc:    p.ProjectSvc,
		evaluationSvc: p.EvaluationSvc,
		invitationSvc: p.InvitationSvc,
	}

	svc.registerAuthRoutes()
	svc.registerProjectRoutes()
	svc.registerEvaluationRoutes()
	svc.registerInvitationRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/signup", s.Signup)
	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.GET("/me", s.AuthRequired(), s.Me)
}

func (s *Server) registerProjectRoutes() {
	projects := s.engine.Group("/projects", s.AuthRequired(), s.BlockMemberWrites())

	projects.GET("", s.ListProjects)
	projects.GET("/mine", s.MyProjects)
	projects.GET("/:id", s.GetProject)
	projects.POST("", s.CreateProject)
	projects.PUT("/:id", s.UpdateProject)
	projects.DELETE("/:id", s.DeleteProject)
	projects.POST("/:id/members/:userId", s.AddProjectMember)
	projects.DELETE("/:id/members/:userId", s.RemoveProjectMember)
}

func (s *Server) registerEvaluationRoutes() {
	evaluations := s.engine.Group("/evaluations", s.AuthRequired(), s.BlockMemberWrites())

	evaluations.POST("", s.CreateEvaluation)
	evaluations.GET("/my-evaluations", s.MyEvaluations)
	evaluations.GET("/project/:projectId", s.ListProjectEvaluations)
	evaluations.GET("/:id", s.GetEvaluation)
	evaluations.PUT("/:id", s.UpdateEvaluation)
	evaluations.DELETE("/:id", s.DeleteEvaluation)
	evaluations.POST("/:id/questions", s.AddEvaluationQuestion)
	evaluations.POST("/:id/join", s.JoinEvaluation)
	evaluations.POST("/:id/feedback", s.SubmitEvaluationFeedback)
}

func (s *Server) registerInvitationRoutes() {
	// Token-holders are not authenticated yet, so validate and accept stay
	// outside the auth group.
	s.engine.GET("/invitations/validate/:token", s.ValidateInvitation)
	s.engine.POST("/invitations/accept", s.AcceptInvitation)

	invitations := s.engine.Group("/invitations", s.AuthRequired(), s.BlockMemberWrites())
	invitations.POST("", s.SendInvitation)
	invitations.GET("", s.ListInvitations)
	invitations.DELETE("/:id", s.RevokeInvitation)
	invitations.POST("/:id/resend", s.ResendInvitation)
}
