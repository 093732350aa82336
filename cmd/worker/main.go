package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"bionexus/internal/queue"
	"bionexus/internal/storage"
	"bionexus/internal/util"
	"bionexus/pkg/ai"
	oai "bionexus/pkg/ai/ollama"
	gai "bionexus/pkg/ai/openai"
	"bionexus/pkg/extract"
	"bionexus/pkg/ingest"
	"bionexus/pkg/leaselock"
	"bionexus/pkg/loader"
	ioloader "bionexus/pkg/loader/io"
	s3loader "bionexus/pkg/loader/s3"
	"bionexus/pkg/logger"
	"bionexus/pkg/logger/console"
	pgstore "bionexus/pkg/store/pgx"
	"bionexus/pkg/writer"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	// Init s3 client
	s3Client := storage.NewS3Client(ctx)

	// AI client
	adapter := util.GetEnv("AI_ADAPTER")
	var aiClient ai.Client

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
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		aiClient = client
	default:
		aiClient = gai.NewOpenAIClient(gai.NewOpenAIClientParams{
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

	// Init pgx client
	pgConn, err := pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()
	pgConn.Config().AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	st := pgstore.NewStoreWithConnection(pgConn)

	timeout := time.Duration(util.GetEnvInt("AI_REQUEST_TIMEOUT_SEC", 120)) * time.Second

	var textExtractor extract.TextExtractor
	switch util.GetEnv("OCR_ADAPTER") {
	case "tesseract":
		languages := strings.Split(util.GetEnvString("OCR_LANGUAGES", "eng"), ",")
		textExtractor = extract.NewTesseractTextExtractor(languages...)
	default:
		textExtractor = extract.NewVisionTextExtractor(aiClient, timeout)
	}

	processor := extract.NewProcessor(
		textExtractor,
		extract.NewAIEntityExtractor(aiClient, timeout),
		extract.NewAIEmbedder(aiClient, timeout),
		util.GetEnvInt("EXTRACT_PARALLEL_PAGES", 4),
	)
	if s3Client != nil {
		processor.Images = storage.NewPageImageSink(s3Client)
	}

	var fileLoader loader.FileLoader
	switch util.GetEnv("FILE_LOADER") {
	case "s3":
		fileLoader = s3loader.NewS3FileLoaderWithClient(util.GetEnv("AWS_BUCKET"), s3Client)
	default:
		fileLoader = ioloader.NewIOFileLoader()
	}

	manager := ingest.NewManager(ingest.NewManagerParams{
		Jobs:      st,
		Graph:     st,
		Loader:    fileLoader,
		Processor: processor,
		Writer:    writer.NewWriter(st, st),
		AI:        aiClient,
	})

	locks := leaselock.New(pgConn)

	// Single consumer with prefetch=1 so one job runs at a time
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, true); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := consumerCh.Consume(
		queue.IngestQueue,
		"ingest_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		logger.Fatal("Failed to start consumer", "err", err)
	}

	logger.Info("Listening for messages")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received, exiting...")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Error("Consumer channel closed")
				return
			}

			startTime := time.Now()

			var data queue.IngestJobMsg
			if err := json.Unmarshal(msg.Body, &data); err != nil {
				logger.Error("Failed to decode message, dropping", "err", err)
				msg.Ack(false)
				continue
			}
			logger.Info("Received ingest job", "job", data.JobID)

			// The lease keeps a redelivered message from running the same
			// job twice in parallel.
			err := locks.WithLease(ctx, "ingest:"+data.JobID, leaselock.Options{
				TTL: 10 * time.Minute,
			}, func(ctx context.Context) error {
				return manager.Run(ctx, data.JobID)
			})
			if err != nil {
				logger.Error("Error processing job", "job", data.JobID, "err", err)
				queue.HandleProcessingError(consumerCh, msg, queue.IngestQueue)
			} else {
				if err := msg.Ack(false); err != nil {
					logger.Error("Failed to ack message", "err", err)
				}
				logger.Info("Job processed successfully", "job", data.JobID)
			}

			metrics := aiClient.GetMetrics()
			aiDuration := time.Duration(metrics.DurationMs) * time.Millisecond
			aiHours := int(aiDuration.Hours())
			aiMinutes := int(aiDuration.Minutes()) % 60
			aiSeconds := int(aiDuration.Seconds()) % 60
			logger.Info(
				"AI Metrics",
				"input_tokens", metrics.InputTokens,
				"output_tokens", metrics.OutputTokens,
				"total_tokens", metrics.TotalTokens,
				"duration", fmt.Sprintf("%02d:%02d:%02d", aiHours, aiMinutes, aiSeconds),
			)

			processingDuration := time.Since(startTime)
			hours := int(processingDuration.Hours())
			minutes := int(processingDuration.Minutes()) % 60
			seconds := int(processingDuration.Seconds()) % 60
			logger.Info(
				"Processing time",
				"duration", fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds),
			)
			logger.Info("Waiting for next message")
			aiClient.ResetMetrics()
		}
	}
}
