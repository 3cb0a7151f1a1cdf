package ingests

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/mickaelmarchal/exifstream/internal/ingest"
)

type (
	ResolutionTypeWrapper struct{ Value ingest.ResolutionType }
	ResolveTroubleRequest struct {
		Method *ResolutionTypeWrapper `json:"method"`
	}

	// IngestDto is the response used by endpoints that return
	// the items being ingested (e.g., list, get)
	IngestDto struct {
		Id       uuid.UUID      `json:"id"`
		Path     string         `json:"source_path"`
		State    IngestStateDto `json:"state"`
		Trouble  *TroubleDto    `json:"trouble"`
		RecordId string         `json:"record_id,omitempty"`
		Skipped  bool           `json:"skipped"`
	}

	IngestStateDto string
	TroubleTypeDto string

	TroubleDto struct {
		Type                   TroubleTypeDto          `json:"type"`
		Message                string                  `json:"message"`
		AllowedResolutionTypes []ResolutionTypeWrapper `json:"allowed_resolution_types"`
	}

	IngestService interface {
		GetAllIngests() []*ingest.IngestItem
		GetIngest(uuid.UUID) *ingest.IngestItem
		RemoveIngest(uuid.UUID) error
		DiscoverNewFiles()
		ResolveTroubledIngest(itemID uuid.UUID, method ingest.ResolutionType) error
	}

	// Controller defines the routes for the ingest endpoints, and holds
	// the reference to the service used to query and control ingestions.
	Controller struct {
		service IngestService
	}
)

const (
	IDLE        IngestStateDto = "IDLE"
	IMPORT_HOLD IngestStateDto = "IMPORT_HOLD"
	INGESTING   IngestStateDto = "INGESTING"
	TROUBLED    IngestStateDto = "TROUBLED"
	COMPLETE    IngestStateDto = "COMPLETE"

	FILE_FAILURE    TroubleTypeDto = "FILE_FAILURE"
	STORE_FAILURE   TroubleTypeDto = "STORE_FAILURE"
	GENERIC_FAILURE TroubleTypeDto = "GENERIC_FAILURE"
)

func New(serv IngestService) *Controller {
	return &Controller{service: serv}
}

// SetRoutes accepts the Echo group for the ingest endpoints
// and sets the routes on them.
func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.list)
	eg.POST("/poll/", controller.performPoll)
	eg.GET("/:id/", controller.get)
	eg.DELETE("/:id/", controller.delete)
	eg.POST("/:id/trouble-resolution/", controller.postTroubleResolution)
}

// list returns all the ingests - represented as DTOs - from the underlying service.
func (controller *Controller) list(ec echo.Context) error {
	items := controller.service.GetAllIngests()
	dtos := make([]*IngestDto, len(items))
	for k, v := range items {
		dtos[k] = NewDto(v)
	}

	return ec.JSON(http.StatusOK, dtos)
}

// get uses the 'id' path param from the context and retrieves the ingest from the
// underlying service. If found, a DTO representing the ingest is returned
func (controller *Controller) get(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Ingest ID is not a valid UUID")
	}

	item := controller.service.GetIngest(id)
	if item == nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}

	return ec.JSON(http.StatusOK, NewDto(item))
}

// delete uses the 'id' path param from the context and retrieves the ingest from the
// underlying service. If found, the ingest is cancelled.
func (controller *Controller) delete(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Ingest ID is not a valid UUID")
	}

	if err := controller.service.RemoveIngest(id); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return ec.NoContent(http.StatusOK)
}

// postTroubleResolution uses the 'id' path param from the context and retrieves the ingest
// from the underlying service. If found, an attempt to resolve the trouble is made.
func (controller *Controller) postTroubleResolution(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Ingest ID is not a valid UUID")
	}

	var request ResolveTroubleRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("JSON body illegal: %v", err))
	} else if request.Method == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "JSON body missing mandatory 'method' field")
	}

	if err := controller.service.ResolveTroubledIngest(id, request.Method.Value); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return ec.NoContent(http.StatusOK)
}

func (controller *Controller) performPoll(ec echo.Context) error {
	controller.service.DiscoverNewFiles()

	return ec.NoContent(http.StatusOK)
}

func (wrapper *ResolutionTypeWrapper) UnmarshalJSON(data []byte) error {
	var strValue string
	if err := json.Unmarshal(data, &strValue); err != nil {
		return err
	}

	switch strValue {
	case "abort":
		wrapper.Value = ingest.Abort
	case "retry":
		wrapper.Value = ingest.Retry
	default:
		return fmt.Errorf("invalid enum value: %s for resolution method", strValue)
	}

	return nil
}

func (wrapper *ResolutionTypeWrapper) MarshalJSON() ([]byte, error) {
	switch wrapper.Value {
	case ingest.Abort:
		return json.Marshal("abort")
	case ingest.Retry:
		return json.Marshal("retry")
	}

	return nil, fmt.Errorf("invalid enum value: %v for resolution method has no known marshalling", wrapper.Value)
}

// NewDto creates an IngestDto using the IngestItem model.
func NewDto(item *ingest.IngestItem) *IngestDto {
	var trbl *TroubleDto = nil
	if item.Trouble != nil {
		trbl = &TroubleDto{
			Type:                   TroubleTypeModelToDto(item.Trouble.Type()),
			Message:                item.Trouble.Error(),
			AllowedResolutionTypes: ExtractTroubleResolutionTypes(item.Trouble),
		}
	}

	return &IngestDto{
		Id:       item.ID,
		Path:     item.RelPath,
		State:    IngestStateModelToDto(item.State),
		Trouble:  trbl,
		RecordId: item.RecordID,
		Skipped:  item.Skipped,
	}
}

func ExtractTroubleResolutionTypes(trouble *ingest.Trouble) []ResolutionTypeWrapper {
	modelResTypes := trouble.AllowedResolutionTypes()
	dtoResTypes := make([]ResolutionTypeWrapper, len(modelResTypes))
	for k, v := range modelResTypes {
		dtoResTypes[k] = ResolutionTypeWrapper{Value: v}
	}

	return dtoResTypes
}

func TroubleTypeModelToDto(troubleType ingest.TroubleType) TroubleTypeDto {
	switch troubleType {
	case ingest.FileFailure:
		return FILE_FAILURE
	case ingest.StoreFailure:
		return STORE_FAILURE
	case ingest.GenericFailure:
		return GENERIC_FAILURE
	}

	panic(fmt.Sprintf("ingest trouble type %s is not recognized by API layer, DTO cannot be created. Please report this error.", troubleType))
}

func IngestStateModelToDto(modelType ingest.IngestItemState) IngestStateDto {
	switch modelType {
	case ingest.Idle:
		return IDLE
	case ingest.ImportHold:
		return IMPORT_HOLD
	case ingest.Ingesting:
		return INGESTING
	case ingest.Troubled:
		return TROUBLED
	case ingest.Complete:
		return COMPLETE
	}

	panic(fmt.Sprintf("ingest state %s is not recognized by API layer, DTO cannot be created. Please report this error.", modelType))
}
