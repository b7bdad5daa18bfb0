package entity

import (
	"context"
	"fmt"
	"net/url"
)

// Study exposes scheduling tags, its series and the store-to-modality call.
type Study struct {
	*Node
	series children[*Series]
}

func newStudy(t Transport, id string) *Study {
	return &Study{Node: newNode(t, KindStudy, id)}
}

func (s *Study) Date(ctx context.Context) (Date, bool, error) {
	return s.DateTag(ctx, "StudyDate")
}

func (s *Study) Time(ctx context.Context) (string, bool, error) {
	return s.Tag(ctx, "StudyTime")
}

func (s *Study) Description(ctx context.Context) (string, bool, error) {
	return s.Tag(ctx, "StudyDescription")
}

func (s *Study) StudyID(ctx context.Context) (string, bool, error) {
	return s.Tag(ctx, "StudyID")
}

func (s *Study) InstanceUID(ctx context.Context) (string, bool, error) {
	return s.Tag(ctx, "StudyInstanceUID")
}

func (s *Study) AccessionNumber(ctx context.Context) (string, bool, error) {
	return s.Tag(ctx, "AccessionNumber")
}

// AnonymizedFrom is the identifier of the study this one was anonymized from.
func (s *Study) AnonymizedFrom(ctx context.Context) (string, bool, error) {
	return s.StringField(ctx, "AnonymizedFrom")
}

// Series returns the study's series, memoized until the study is reloaded.
func (s *Study) Series(ctx context.Context) ([]*Series, error) {
	return s.series.resolve(ctx, s.Node, "Series", func(id string) *Series {
		return newSeries(s.transport, id)
	})
}

func (s *Study) SeriesCount(ctx context.Context) (int, error) {
	series, err := s.Series(ctx)
	if err != nil {
		return 0, err
	}
	return len(series), nil
}

// Patient returns a fresh, unfetched node for the parent patient.
func (s *Study) Patient(ctx context.Context) (*Patient, error) {
	id, err := s.parentID(ctx, "ParentPatient")
	if err != nil {
		return nil, err
	}
	return newPatient(s.transport, id), nil
}

// SendTo asks the archive to push the study to a configured DICOM modality and
// returns the archive's decoded answer.
func (s *Study) SendTo(ctx context.Context, modality string) (any, error) {
	if modality == "" {
		return nil, fmt.Errorf("modality cannot be empty")
	}
	out, err := s.transport.Post(ctx, fmt.Sprintf("/modalities/%s/store", url.PathEscape(modality)), s.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to send %s to modality %s: %w", s.ref, modality, err)
	}
	return out, nil
}

// Anonymize creates an anonymized copy of the study in which the patient name
// and id are both replaced by obscureID.
func (s *Study) Anonymize(ctx context.Context, obscureID string) (any, error) {
	body := map[string]any{
		"Replace": map[string]string{
			"PatientName": obscureID,
			"PatientID":   obscureID,
		},
		"Keep": []string{"StudyDescription", "SeriesDescription"},
	}
	out, err := s.transport.Post(ctx, s.Path()+"/anonymize", body)
	if err != nil {
		return nil, fmt.Errorf("failed to anonymize %s: %w", s.ref, err)
	}
	return out, nil
}
