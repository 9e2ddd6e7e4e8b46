package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/lwald/semgrade/internal/clustercache"
	"github.com/lwald/semgrade/internal/config"
	"github.com/lwald/semgrade/internal/filestore"
	"github.com/lwald/semgrade/internal/handler"
	"github.com/lwald/semgrade/internal/job"
	"github.com/lwald/semgrade/internal/middleware"
	"github.com/lwald/semgrade/internal/model"
	"github.com/lwald/semgrade/internal/repo"
	"github.com/lwald/semgrade/internal/schedule"
	"github.com/lwald/semgrade/internal/segmentation"
	"github.com/lwald/semgrade/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "semgrade",
		Short: "semgrade assessment server",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run semgrade server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := setup(configPath)
			if err != nil {
				return err
			}
			return runServer(cfg, db)
		},
	}

	var (
		ingestExercise string
		ingestFile     string
	)
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "apply a clustering batch from a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := setup(configPath)
			if err != nil {
				return err
			}
			return runIngest(cmd.Context(), cfg, db, ingestExercise, ingestFile)
		},
	}
	ingestCmd.Flags().StringVar(&ingestExercise, "exercise", "", "exercise id")
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "path to batch json")

	var (
		userName string
		userPass string
		userRole string
	)
	adduserCmd := &cobra.Command{
		Use:   "adduser",
		Short: "create a tutor or instructor account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := setup(configPath)
			if err != nil {
				return err
			}
			auth := service.NewAuthService(repo.NewUserRepo(db), []byte(cfg.JWTSecret), time.Hour)
			user, err := auth.CreateUser(cmd.Context(), userName, userPass, userRole)
			if err != nil {
				return err
			}
			fmt.Printf("created user %s (%s)\n", user.Name, user.ID)
			return nil
		},
	}
	adduserCmd.Flags().StringVar(&userName, "name", "", "user name")
	adduserCmd.Flags().StringVar(&userPass, "password", "", "password")
	adduserCmd.Flags().StringVar(&userRole, "role", model.RoleTutor, "tutor or instructor")

	rootCmd.AddCommand(runCmd, ingestCmd, adduserCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func setup(configPath string) (*config.Config, *sqlx.DB, error) {
	if configPath == "" {
		return nil, nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

	db, err := repo.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := repo.ApplyMigrations(db); err != nil {
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return cfg, db, nil
}

type services struct {
	auth        *service.AuthService
	courses     *service.CourseService
	assessments *service.AssessmentService
	clusters    *service.ClusterService
	conflicts   *service.ConflictService
	ingest      *service.IngestService
	reports     *service.ReportService
	ingestRuns  *repo.IngestRunRepo
	store       filestore.Store
}

func buildServices(ctx context.Context, cfg *config.Config, db *sqlx.DB) (*services, error) {
	userRepo := repo.NewUserRepo(db)
	exerciseRepo := repo.NewExerciseRepo(db)
	submissionRepo := repo.NewSubmissionRepo(db)
	resultRepo := repo.NewResultRepo(db)
	blockRepo := repo.NewTextBlockRepo(db)
	clusterRepo := repo.NewTextClusterRepo(db)
	feedbackRepo := repo.NewFeedbackRepo(db)
	conflictRepo := repo.NewConflictRepo(db)
	ingestRunRepo := repo.NewIngestRunRepo(db)

	store, err := filestore.New(ctx, cfg.FileStore)
	if err != nil {
		return nil, fmt.Errorf("init file store: %w", err)
	}
	cache := clustercache.NewReader(clusterRepo, cfg.ClusterCache.Size,
		time.Duration(cfg.ClusterCache.TTLSeconds)*time.Second)

	var segClient segmentation.Client
	if cfg.Segmentation.Endpoint != "" {
		segClient, err = segmentation.NewClient(cfg.Segmentation)
		if err != nil {
			return nil, fmt.Errorf("init segmentation client: %w", err)
		}
	}

	authService := service.NewAuthService(userRepo, []byte(cfg.JWTSecret), time.Hour*time.Duration(cfg.JWTTTLHours))
	courseService := service.NewCourseService(db, exerciseRepo, submissionRepo, blockRepo, cache)
	suggestionService := service.NewSuggestionService(blockRepo, feedbackRepo, submissionRepo, resultRepo, cache)
	conflictService := service.NewConflictService(feedbackRepo, blockRepo, conflictRepo, exerciseRepo, submissionRepo, cache,
		cfg.Assessment.ConflictCreditThreshold)
	assessmentService := service.NewAssessmentService(db, submissionRepo, resultRepo, blockRepo, feedbackRepo,
		suggestionService, conflictService)
	clusterService := service.NewClusterService(clusterRepo, feedbackRepo, exerciseRepo, cache)
	ingestService := service.NewIngestService(db, exerciseRepo, submissionRepo, ingestRunRepo, store, cache, segClient)
	reportService := service.NewReportService(exerciseRepo, clusterService, conflictService)

	return &services{
		auth:        authService,
		courses:     courseService,
		assessments: assessmentService,
		clusters:    clusterService,
		conflicts:   conflictService,
		ingest:      ingestService,
		reports:     reportService,
		ingestRuns:  ingestRunRepo,
		store:       store,
	}, nil
}

func runServer(cfg *config.Config, db *sqlx.DB) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svcs, err := buildServices(ctx, cfg, db)
	if err != nil {
		return err
	}

	deps := handler.RouterDeps{
		Auth:        handler.NewAuthHandler(svcs.auth),
		Courses:     handler.NewCourseHandler(svcs.courses),
		Assessments: handler.NewAssessmentHandler(svcs.assessments),
		Clusters:    handler.NewClusterHandler(svcs.clusters),
		Conflicts:   handler.NewConflictHandler(svcs.conflicts),
		Ingest:      handler.NewIngestHandler(svcs.ingest),
		Reports:     handler.NewReportHandler(svcs.reports),
		Files:       handler.NewFileHandler(svcs.store),
		JWTSecret:   []byte(cfg.JWTSecret),
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSAllowlist),
			middleware.RateLimit(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewIngestRunCleanupJob(svcs.ingestRuns, cfg.Jobs.IngestRunRetentionDays), cfg.Jobs.CleanupSpec); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}

func runIngest(ctx context.Context, cfg *config.Config, db *sqlx.DB, exerciseID, file string) error {
	if exerciseID == "" || file == "" {
		return fmt.Errorf("--exercise and --file are required")
	}
	svcs, err := buildServices(ctx, cfg, db)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	var batch model.ClusterBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return fmt.Errorf("decode batch: %w", err)
	}
	run, err := svcs.ingest.IngestBatch(ctx, exerciseID, &batch)
	if err != nil {
		return err
	}
	fmt.Printf("ingest run %s: %s (%d segments, %d clusters)\n", run.ID, run.Status, run.SegmentCount, run.ClusterCount)
	return nil
}
