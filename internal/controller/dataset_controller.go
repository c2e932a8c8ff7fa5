package controller

import (
	"errors"

	"csvlens-be/internal/pkg/serverutils"
	"csvlens-be/internal/repository/implementation"
	"csvlens-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IDatasetController interface {
	RegisterRoutes(router fiber.Router)
}

type DatasetController struct {
	service service.IDatasetService
}

func NewDatasetController(svc service.IDatasetService) IDatasetController {
	return &DatasetController{service: svc}
}

func (ctl *DatasetController) GetDataset(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid dataset ID"})
	}

	dataset, err := ctl.service.GetDataset(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, implementation.ErrDatasetNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Dataset not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"data": dataset})
}

// GetCellHistory returns the audit trail; ?cellId= narrows it to one cell.
func (ctl *DatasetController) GetCellHistory(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid dataset ID"})
	}

	edits, err := ctl.service.GetCellHistory(c.UserContext(), id, c.Query("cellId"))
	if err != nil {
		if errors.Is(err, implementation.ErrDatasetNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Dataset not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"data": edits, "total": len(edits)})
}

func (ctl *DatasetController) GetComments(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid dataset ID"})
	}

	comments, err := ctl.service.GetComments(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, implementation.ErrDatasetNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Dataset not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"data": comments, "total": len(comments)})
}

func (ctl *DatasetController) RegisterRoutes(router fiber.Router) {
	datasets := router.Group("/datasets")
	datasets.Use(serverutils.JwtMiddleware)
	datasets.Get("/:id", ctl.GetDataset)
	datasets.Get("/:id/history", ctl.GetCellHistory)
	datasets.Get("/:id/comments", ctl.GetComments)
}
