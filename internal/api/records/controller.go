package records

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/mickaelmarchal/exifstream/internal/ingest"
	"github.com/mickaelmarchal/exifstream/internal/record"
)

type (
	// RecordDto is the response shape for the record endpoints. The
	// Record field serializes to the flattened tag document, so the
	// curated tags appear alongside the base fields.
	RecordDto struct {
		Id        string        `json:"id"`
		Digest    string        `json:"digest"`
		CreatedAt time.Time     `json:"created_at"`
		UpdatedAt time.Time     `json:"updated_at"`
		Record    record.Record `json:"record"`
	}

	ImportImagesRequest struct {
		RecordIds []string `json:"record_ids" validate:"required,min=1"`
	}

	Store interface {
		ListRecords() ([]*record.Stored, error)
		GetRecordByID(id string) (*record.Stored, error)
		DeleteRecord(id string) error
	}

	ImageImporter interface {
		ImportImages(recordIDs []string) ([]ingest.ImportResult, error)
	}

	// Controller defines the routes for the record endpoints. It reads
	// from the record store directly; image imports go through the
	// ingest service as it owns the library and asset paths.
	Controller struct {
		store       Store
		importer    ImageImporter
		validate    *validator.Validate
		libraryPath string
	}
)

func New(validate *validator.Validate, store Store, importer ImageImporter, libraryPath string) *Controller {
	return &Controller{store: store, importer: importer, validate: validate, libraryPath: libraryPath}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.list)
	eg.POST("/import/", controller.importImages)
	eg.GET("/:id/", controller.get)
	eg.DELETE("/:id/", controller.delete)
	eg.GET("/:id/image/", controller.downloadImage)
}

func (controller *Controller) list(ec echo.Context) error {
	stored, err := controller.store.ListRecords()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	dtos := make([]*RecordDto, len(stored))
	for k, v := range stored {
		dtos[k] = NewDto(v)
	}

	return ec.JSON(http.StatusOK, dtos)
}

func (controller *Controller) get(ec echo.Context) error {
	stored, err := controller.lookup(ec.Param("id"))
	if err != nil {
		return err
	}

	return ec.JSON(http.StatusOK, NewDto(stored))
}

func (controller *Controller) delete(ec echo.Context) error {
	if err := controller.store.DeleteRecord(ec.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.NoContent(http.StatusOK)
}

// downloadImage serves the library file backing the record specified by
// the 'id' path param.
func (controller *Controller) downloadImage(ec echo.Context) error {
	stored, err := controller.lookup(ec.Param("id"))
	if err != nil {
		return err
	}

	path := filepath.Join(controller.libraryPath, filepath.FromSlash(stored.Record.SourcePath))
	return ec.Attachment(path, stored.Record.FileName)
}

// importImages copies the image binaries for the requested records in
// to the asset directory. Partial failure is reported per-record via a
// nil asset path; total failure is a 400.
func (controller *Controller) importImages(ec echo.Context) error {
	var request ImportImagesRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("JSON body illegal: %v", err))
	}

	if err := controller.validate.Struct(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid body: %s", err.Error()))
	}

	results, err := controller.importer.ImportImages(request.RecordIds)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return ec.JSON(http.StatusOK, results)
}

func (controller *Controller) lookup(id string) (*record.Stored, error) {
	stored, err := controller.store.GetRecordByID(id)
	if err != nil {
		if errors.Is(err, record.ErrRecordNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound)
		}

		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return stored, nil
}

// NewDto creates a RecordDto from the stored record model.
func NewDto(stored *record.Stored) *RecordDto {
	return &RecordDto{
		Id:        stored.ID,
		Digest:    stored.Digest.String(),
		CreatedAt: stored.CreatedAt,
		UpdatedAt: stored.UpdatedAt,
		Record:    stored.Record,
	}
}
