package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-playground/validator"
	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"bionexus/internal/queue"
	mid "bionexus/internal/server/middleware"
	"bionexus/internal/storage"
	"bionexus/internal/util"
	"bionexus/pkg/ai"
	oai "bionexus/pkg/ai/ollama"
	gai "bionexus/pkg/ai/openai"
	"bionexus/pkg/export"
	"bionexus/pkg/extract"
	"bionexus/pkg/ingest"
	"bionexus/pkg/loader"
	ioloader "bionexus/pkg/loader/io"
	s3loader "bionexus/pkg/loader/s3"
	"bionexus/pkg/logger"
	"bionexus/pkg/retrieval"
	pgstore "bionexus/pkg/store/pgx"
	"bionexus/pkg/synthesis"
	"bionexus/pkg/writer"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func Init() {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()
	conn.Config().AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	runMigrations()

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	if err := queue.SetupQueues(ch); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	s3Client := storage.NewS3Client(ctx)

	aiClient := NewAIClient()

	st := pgstore.NewStoreWithConnection(conn)

	timeout := time.Duration(util.GetEnvInt("AI_REQUEST_TIMEOUT_SEC", 120)) * time.Second
	embedder := extract.NewAIEmbedder(aiClient, timeout)

	processor := extract.NewProcessor(
		NewTextExtractor(aiClient, timeout),
		extract.NewAIEntityExtractor(aiClient, timeout),
		embedder,
		util.GetEnvInt("EXTRACT_PARALLEL_PAGES", 4),
	)
	if s3Client != nil {
		processor.Images = storage.NewPageImageSink(s3Client)
	}

	manager := ingest.NewManager(ingest.NewManagerParams{
		Jobs:      st,
		Graph:     st,
		Loader:    NewFileLoader(s3Client),
		Processor: processor,
		Writer:    writer.NewWriter(st, st),
		AI:        aiClient,
	})

	retrievalEngine := retrieval.NewEngine(st, st, embedder)
	synthesisEngine := synthesis.NewEngine(retrievalEngine, aiClient)

	app := &mid.App{
		DBConn:    conn,
		Queue:     ch,
		S3:        s3Client,
		Graph:     st,
		Vector:    st,
		Jobs:      st,
		Manager:   manager,
		Retrieval: retrievalEngine,
		Synthesis: synthesisEngine,
		Exporter:  export.NewExporter(st),
		AiClient:  aiClient,
	}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("256M"))

	RegisterRoutes(e)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}

func runMigrations() {
	dir := util.GetEnvString("MIGRATIONS_DIR", "migrations")
	m, err := migrate.New("file://"+dir, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Failed to load migrations", "err", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal("Failed to run migrations", "err", err)
	}
}

// NewAIClient builds the model client selected by AI_ADAPTER.
func NewAIClient() ai.Client {
	adapter := util.GetEnv("AI_ADAPTER")

	switch adapter {
	case "ollama":
		client, err := oai.NewOllamaClient(oai.NewOllamaClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			CompletionModel: util.GetEnv("AI_CHAT_MODEL"),
			ExtractionModel: util.GetEnv("AI_EXTRACT_MODEL"),
			VisionModel:     util.GetEnv("AI_VISION_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 4)),
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama client", "err", err)
		}
		return client
	default:
		return gai.NewOpenAIClient(gai.NewOpenAIClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			CompletionModel: util.GetEnv("AI_CHAT_MODEL"),
			ExtractionModel: util.GetEnv("AI_EXTRACT_MODEL"),
			VisionModel:     util.GetEnv("AI_VISION_MODEL"),

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),
			VisionURL:    util.GetEnv("AI_VISION_URL"),
			VisionKey:    util.GetEnv("AI_VISION_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 4)),
		})
	}
}

// NewTextExtractor builds the OCR backend selected by OCR_ADAPTER.
func NewTextExtractor(client ai.Client, timeout time.Duration) extract.TextExtractor {
	switch util.GetEnv("OCR_ADAPTER") {
	case "tesseract":
		languages := strings.Split(util.GetEnvString("OCR_LANGUAGES", "eng"), ",")
		return extract.NewTesseractTextExtractor(languages...)
	default:
		return extract.NewVisionTextExtractor(client, timeout)
	}
}

// NewFileLoader builds the document source selected by FILE_LOADER.
func NewFileLoader(s3Client *s3.Client) loader.FileLoader {
	switch util.GetEnv("FILE_LOADER") {
	case "s3":
		return s3loader.NewS3FileLoaderWithClient(util.GetEnv("AWS_BUCKET"), s3Client)
	default:
		return ioloader.NewIOFileLoader()
	}
}
