// File: internal/models/types.go
package models

import (
	"context"
	"errors"

	"github.com/ewag/orthanc-graph/internal/entity"
)

// Views are the JSON shapes rendered by both the API and the CLI.
// Absent tags are omitted rather than rendered empty.
//
// The New*View builders return a nil view only when the entity could not be
// fetched. Otherwise the view is returned together with the joined errors of
// any accessor that failed, and the failed fields are left empty.

type PatientView struct {
	ID        string       `json:"id"`
	PatientID string       `json:"patientId,omitempty"`
	Name      string       `json:"name,omitempty"`
	BirthDate *entity.Date `json:"birthDate,omitempty"`
	Sex       string       `json:"sex,omitempty"`
	Studies   []string     `json:"studies"`
}

type StudyView struct {
	ID              string       `json:"id"`
	StudyID         string       `json:"studyId,omitempty"`
	InstanceUID     string       `json:"studyInstanceUid,omitempty"`
	Description     string       `json:"description,omitempty"`
	Date            *entity.Date `json:"date,omitempty"`
	Time            string       `json:"time,omitempty"`
	AccessionNumber string       `json:"accessionNumber,omitempty"`
	Patient         string       `json:"patient"`
	Series          []string     `json:"series"`
}

type SeriesView struct {
	ID           string       `json:"id"`
	InstanceUID  string       `json:"seriesInstanceUid,omitempty"`
	Modality     string       `json:"modality,omitempty"`
	Manufacturer string       `json:"manufacturer,omitempty"`
	Protocol     string       `json:"protocol,omitempty"`
	Description  string       `json:"description,omitempty"`
	Number       string       `json:"number,omitempty"`
	Date         *entity.Date `json:"date,omitempty"`
	Status       string       `json:"status,omitempty"`
	IsStable     *bool        `json:"isStable,omitempty"`
	Study        string       `json:"study"`
	Instances    []string     `json:"instances"`
}

type InstanceView struct {
	ID             string `json:"id"`
	SOPInstanceUID string `json:"sopInstanceUid,omitempty"`
	InstanceNumber string `json:"instanceNumber,omitempty"`
	Index          *int64 `json:"indexInSeries,omitempty"`
	FileSize       *int64 `json:"fileSize,omitempty"`
	Series         string `json:"series"`
	PreviewURL     string `json:"previewUrl"`
}

// ChangesView is one cursor pass: the matching ids and where to resume.
type ChangesView struct {
	ChangeType string   `json:"changeType"`
	IDs        []string `json:"ids"`
	Since      int64    `json:"since"`
}

// reader collects accessor errors so one bad field does not hide the rest of
// the view.
type reader struct {
	errs []error
}

func (r *reader) keep(err error) {
	if err != nil {
		r.errs = append(r.errs, err)
	}
}

func (r *reader) err() error {
	return errors.Join(r.errs...)
}

func (r *reader) str(v string, _ bool, err error) string {
	r.keep(err)
	return v
}

func (r *reader) date(v entity.Date, ok bool, err error) *entity.Date {
	r.keep(err)
	if !ok {
		return nil
	}
	return &v
}

func (r *reader) num(v int64, ok bool, err error) *int64 {
	r.keep(err)
	if !ok {
		return nil
	}
	return &v
}

func (r *reader) flag(v bool, ok bool, err error) *bool {
	r.keep(err)
	if !ok {
		return nil
	}
	return &v
}

func ids[T interface{ ID() string }](nodes []T) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID())
	}
	return out
}

func NewPatientView(ctx context.Context, p *entity.Patient) (*PatientView, error) {
	if err := p.Load(ctx, false); err != nil {
		return nil, err
	}
	var r reader
	v := &PatientView{
		ID:        p.ID(),
		PatientID: r.str(p.PatientID(ctx)),
		Name:      r.str(p.Name(ctx)),
		BirthDate: r.date(p.BirthDate(ctx)),
		Sex:       r.str(p.Sex(ctx)),
	}
	studies, err := p.Studies(ctx)
	r.keep(err)
	v.Studies = ids(studies)
	return v, r.err()
}

func NewStudyView(ctx context.Context, s *entity.Study) (*StudyView, error) {
	if err := s.Load(ctx, false); err != nil {
		return nil, err
	}
	var r reader
	v := &StudyView{
		ID:              s.ID(),
		StudyID:         r.str(s.StudyID(ctx)),
		InstanceUID:     r.str(s.InstanceUID(ctx)),
		Description:     r.str(s.Description(ctx)),
		Date:            r.date(s.Date(ctx)),
		Time:            r.str(s.Time(ctx)),
		AccessionNumber: r.str(s.AccessionNumber(ctx)),
	}
	if patient, err := s.Patient(ctx); err != nil {
		r.keep(err)
	} else {
		v.Patient = patient.ID()
	}
	series, err := s.Series(ctx)
	r.keep(err)
	v.Series = ids(series)
	return v, r.err()
}

func NewSeriesView(ctx context.Context, s *entity.Series) (*SeriesView, error) {
	if err := s.Load(ctx, false); err != nil {
		return nil, err
	}
	var r reader
	v := &SeriesView{
		ID:           s.ID(),
		InstanceUID:  r.str(s.InstanceUID(ctx)),
		Modality:     r.str(s.Modality(ctx)),
		Manufacturer: r.str(s.Manufacturer(ctx)),
		Protocol:     r.str(s.Protocol(ctx)),
		Description:  r.str(s.Description(ctx)),
		Number:       r.str(s.Number(ctx)),
		Date:         r.date(s.Date(ctx)),
		Status:       r.str(s.Status(ctx)),
		IsStable:     r.flag(s.IsStable(ctx)),
	}
	if study, err := s.Study(ctx); err != nil {
		r.keep(err)
	} else {
		v.Study = study.ID()
	}
	instances, err := s.Instances(ctx)
	r.keep(err)
	v.Instances = ids(instances)
	return v, r.err()
}

func NewInstanceView(ctx context.Context, i *entity.Instance) (*InstanceView, error) {
	if err := i.Load(ctx, false); err != nil {
		return nil, err
	}
	var r reader
	v := &InstanceView{
		ID:             i.ID(),
		SOPInstanceUID: r.str(i.SOPInstanceUID(ctx)),
		InstanceNumber: r.str(i.InstanceNumber(ctx)),
		Index:          r.num(i.Index(ctx)),
		FileSize:       r.num(i.FileSize(ctx)),
		PreviewURL:     i.PreviewURL(),
	}
	if series, err := i.Series(ctx); err != nil {
		r.keep(err)
	} else {
		v.Series = series.ID()
	}
	return v, r.err()
}
