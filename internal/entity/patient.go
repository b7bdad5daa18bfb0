package entity

import "context"

// Patient exposes identity and demographic tags.
type Patient struct {
	*Node
	studies children[*Study]
}

func newPatient(t Transport, id string) *Patient {
	return &Patient{Node: newNode(t, KindPatient, id)}
}

func (p *Patient) Name(ctx context.Context) (string, bool, error) {
	return p.Tag(ctx, "PatientName")
}

func (p *Patient) BirthDate(ctx context.Context) (Date, bool, error) {
	return p.DateTag(ctx, "PatientBirthDate")
}

func (p *Patient) Sex(ctx context.Context) (string, bool, error) {
	return p.Tag(ctx, "PatientSex")
}

// PatientID is the DICOM PatientID tag, not the archive identifier.
func (p *Patient) PatientID(ctx context.Context) (string, bool, error) {
	return p.Tag(ctx, "PatientID")
}

// Studies returns the patient's studies. The same Study values are returned
// until the patient is reloaded.
func (p *Patient) Studies(ctx context.Context) ([]*Study, error) {
	return p.studies.resolve(ctx, p.Node, "Studies", func(id string) *Study {
		return newStudy(p.transport, id)
	})
}
