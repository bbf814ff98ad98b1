package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/uni-ops/registrar-api/api/swagger"
	"github.com/uni-ops/registrar-api/internal/handler"
	"github.com/uni-ops/registrar-api/internal/middleware"
	"github.com/uni-ops/registrar-api/internal/models"
	"github.com/uni-ops/registrar-api/internal/repository"
	"github.com/uni-ops/registrar-api/internal/service"
	"github.com/uni-ops/registrar-api/pkg/cache"
	"github.com/uni-ops/registrar-api/pkg/config"
	"github.com/uni-ops/registrar-api/pkg/database"
	"github.com/uni-ops/registrar-api/pkg/logger"
	corsmiddleware "github.com/uni-ops/registrar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/uni-ops/registrar-api/pkg/middleware/requestid"
)

// @title Registrar API
// @version 1.0.0
// @description Academic records service: course catalog, section enrollment and grade management
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()

	// Redis is optional: the catalog cache degrades to direct reads
	// when it is unreachable.
	var cacheSvc *service.CacheService
	if cfg.Catalog.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, catalog cache disabled", "error", err)
			cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Catalog.CacheTTL, logr, false)
		} else {
			defer redisClient.Close()
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Catalog.CacheTTL, logr, true)
		}
	} else {
		cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Catalog.CacheTTL, logr, false)
	}

	courseRepo := repository.NewCourseRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	userRepo := repository.NewUserRepository(db)

	accessSvc := service.NewAccessService(settingsRepo, sectionRepo, logr)
	prereqSvc := service.NewPrerequisiteService(courseRepo, gradeRepo, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, sectionRepo, accessSvc, prereqSvc, nil, logr)
	gradeSvc := service.NewGradeService(gradeRepo, enrollmentRepo, userRepo, accessSvc, metricsSvc, nil, logr)
	catalogSvc := service.NewCatalogService(courseRepo, sectionRepo, enrollmentRepo, userRepo, cacheSvc, cfg.Catalog.CacheTTL, nil, logr)
	settingsSvc := service.NewSettingsService(settingsRepo, logr)
	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})

	authHandler := handler.NewAuthHandler(authSvc)
	catalogHandler := handler.NewCatalogHandler(catalogSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, metricsSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	studentHandler := handler.NewStudentHandler(enrollmentSvc, gradeSvc)
	settingsHandler := handler.NewSettingsHandler(settingsSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.GET("/catalog", catalogHandler.GetCatalog)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.GET("/auth/me", authHandler.Me)

	authed.POST("/enrollments", middleware.RequireRoles(models.RoleStudent), enrollmentHandler.Register)
	authed.POST("/enrollments/drop", middleware.RequireRoles(models.RoleStudent), enrollmentHandler.Drop)

	authed.GET("/students/:id/registrations", middleware.RBAC("SELF"), studentHandler.Registrations)
	authed.GET("/students/:id/grades", middleware.RBAC("SELF"), studentHandler.Grades)
	authed.GET("/students/:id/gpa", middleware.RBAC("SELF"), studentHandler.GPA)

	authed.GET("/sections/:id/gradebook", middleware.RequireRoles(models.RoleInstructor), gradeHandler.Gradebook)
	authed.PUT("/sections/:id/grades", middleware.RequireRoles(models.RoleInstructor), gradeHandler.UpdateGrades)
	authed.GET("/sections/:id/statistics", middleware.RequireRoles(models.RoleInstructor), gradeHandler.Statistics)

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	admin.POST("/courses", catalogHandler.CreateCourse)
	admin.GET("/sections", catalogHandler.ListSections)
	admin.POST("/sections", catalogHandler.CreateSection)
	admin.PUT("/sections/:id/instructor", catalogHandler.AssignInstructor)
	admin.DELETE("/sections/:id", catalogHandler.DeleteSection)
	admin.GET("/settings/maintenance", settingsHandler.GetMaintenance)
	admin.PUT("/settings/maintenance", settingsHandler.SetMaintenance)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
