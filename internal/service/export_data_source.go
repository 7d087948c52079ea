package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/unireg/unireg-api/internal/models"
)

type exportRegistrationReader interface {
	ListAllForExport(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, error)
}

type exportModuleReader interface {
	FindByCode(ctx context.Context, code string) (*models.Module, error)
	List(ctx context.Context, filter models.ModuleFilter) ([]models.ModuleDetail, int, error)
}

type exportCourseReader interface {
	FindByCode(ctx context.Context, code string) (*models.Course, error)
}

type exportStudentReader interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
}

// ExportDataSource resolves report parameters against the catalog and feeds
// row data to the export renderers.
type ExportDataSource struct {
	registrations exportRegistrationReader
	modules       exportModuleReader
	courses       exportCourseReader
	students      exportStudentReader
}

// NewExportDataSource constructs the data source.
func NewExportDataSource(registrations exportRegistrationReader, modules exportModuleReader, courses exportCourseReader, students exportStudentReader) *ExportDataSource {
	return &ExportDataSource{
		registrations: registrations,
		modules:       modules,
		courses:       courses,
		students:      students,
	}
}

// RegistrationRows returns registrations scoped by the job parameters.
func (d *ExportDataSource) RegistrationRows(ctx context.Context, params models.ReportJobParams) ([]models.RegistrationDetail, error) {
	filter := models.RegistrationFilter{Status: models.RegistrationStatus(params.Status)}
	if params.ModuleCode != "" {
		module, err := d.modules.FindByCode(ctx, strings.ToUpper(params.ModuleCode))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("unknown module %s", params.ModuleCode)
			}
			return nil, err
		}
		filter.ModuleID = module.ID
	}
	if params.CourseCode != "" {
		course, err := d.courses.FindByCode(ctx, strings.ToUpper(params.CourseCode))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("unknown course %s", params.CourseCode)
			}
			return nil, err
		}
		filter.CourseID = course.ID
	}
	return d.registrations.ListAllForExport(ctx, filter)
}

// ModuleRows returns the module catalog scoped by the job parameters.
func (d *ExportDataSource) ModuleRows(ctx context.Context, params models.ReportJobParams) ([]models.ModuleDetail, error) {
	filter := models.ModuleFilter{Search: params.ModuleCode}
	if params.CourseCode != "" {
		course, err := d.courses.FindByCode(ctx, strings.ToUpper(params.CourseCode))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("unknown course %s", params.CourseCode)
			}
			return nil, err
		}
		filter.CourseID = course.ID
	}
	var all []models.ModuleDetail
	filter.Page = 1
	filter.PageSize = 100
	for {
		page, total, err := d.modules.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(all) >= total || len(page) == 0 {
			return all, nil
		}
		filter.Page++
	}
}

// StudentRows returns students scoped by the job parameters.
func (d *ExportDataSource) StudentRows(ctx context.Context, params models.ReportJobParams) ([]models.StudentDetail, error) {
	filter := models.StudentFilter{}
	if params.CourseCode != "" {
		course, err := d.courses.FindByCode(ctx, strings.ToUpper(params.CourseCode))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("unknown course %s", params.CourseCode)
			}
			return nil, err
		}
		filter.CourseID = course.ID
	}
	var all []models.StudentDetail
	filter.Page = 1
	filter.PageSize = 100
	for {
		page, total, err := d.students.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(all) >= total || len(page) == 0 {
			return all, nil
		}
		filter.Page++
	}
}
