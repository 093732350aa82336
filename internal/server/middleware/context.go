package middleware

import (
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"bionexus/pkg/ai"
	"bionexus/pkg/export"
	"bionexus/pkg/ingest"
	"bionexus/pkg/retrieval"
	"bionexus/pkg/store"
	"bionexus/pkg/synthesis"
)

// App bundles the shared clients and services built once at startup.
type App struct {
	DBConn *pgxpool.Pool
	Queue  *amqp091.Channel
	S3     *s3.Client

	Graph  store.GraphStore
	Vector store.VectorStore
	Jobs   store.JobStore

	Manager   *ingest.Manager
	Retrieval *retrieval.Engine
	Synthesis *synthesis.Engine
	Exporter  *export.Exporter

	AiClient ai.Client
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
