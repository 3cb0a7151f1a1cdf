package api

import (
	"context"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mickaelmarchal/exifstream/internal/api/ingests"
	"github.com/mickaelmarchal/exifstream/internal/api/records"
	"github.com/mickaelmarchal/exifstream/internal/http/websocket"
	"github.com/mickaelmarchal/exifstream/pkg/logger"
)

var log = logger.Get("API")

type (
	RestConfig struct {
		HostAddr string `yaml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:8080"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	ingestService interface {
		ingests.IngestService
		records.ImageImporter
	}

	// The RestGateway is a thin wrapper around the Echo HTTP router.
	// Its sole responsibility is to create the routes Exifstream
	// exposes and to manage ongoing websocket connections and events.
	RestGateway struct {
		*broadcaster
		config           *RestConfig
		ec               *echo.Echo
		socket           *websocket.SocketHub
		ingestController controller
		recordController controller
	}
)

// NewRestGateway constructs the Echo router and populates it with all
// the routes defined by the various controllers.
func NewRestGateway(config *RestConfig, ingestService ingestService, recordStore records.Store, libraryPath string) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true

	validate := validator.New(validator.WithRequiredStructEnabled())
	socket := websocket.NewSocketHub()
	gateway := &RestGateway{
		broadcaster:      newBroadcaster(socket, ingestService, recordStore),
		config:           config,
		ec:               ec,
		socket:           socket,
		ingestController: ingests.New(ingestService),
		recordController: records.New(validate, recordStore, ingestService, libraryPath),
	}

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())
	ec.Pre(middleware.AddTrailingSlash())

	ec.GET("/api/exifstream/v1/activity/ws/", func(ec echo.Context) error {
		gateway.socket.UpgradeToSocket(ec.Response(), ec.Request())
		return nil
	})

	ingestGroup := ec.Group("/api/exifstream/v1/ingests")
	gateway.ingestController.SetRoutes(ingestGroup)

	recordGroup := ec.Group("/api/exifstream/v1/records")
	gateway.recordController.SetRoutes(recordGroup)

	return gateway
}

func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	// Start echo router
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil {
			ctxCancel(err)
		}
	}()

	// Start thread to listen for context cancellation
	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
	}(gateway.ec)

	// Start websocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.socket.Start(ctx)
	}()

	wg.Wait()

	// Return cancellation cause if any, otherwise nil as parent context
	// cancellation is not an error case we should report.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}
