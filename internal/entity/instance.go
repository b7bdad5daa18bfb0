package entity

import "context"

// Instance is a single stored DICOM file.
type Instance struct {
	*Node
}

func newInstance(t Transport, id string) *Instance {
	return &Instance{Node: newNode(t, KindInstance, id)}
}

// Index is the archive's IndexInSeries, which is not the same as the
// instance's position in its series' list.
func (i *Instance) Index(ctx context.Context) (int64, bool, error) {
	return i.IntField(ctx, "IndexInSeries")
}

func (i *Instance) FileSize(ctx context.Context) (int64, bool, error) {
	return i.IntField(ctx, "FileSize")
}

func (i *Instance) FileUUID(ctx context.Context) (string, bool, error) {
	return i.StringField(ctx, "FileUuid")
}

func (i *Instance) AcquisitionNumber(ctx context.Context) (string, bool, error) {
	return i.Tag(ctx, "AcquisitionNumber")
}

func (i *Instance) InstanceNumber(ctx context.Context) (string, bool, error) {
	return i.Tag(ctx, "InstanceNumber")
}

func (i *Instance) SOPInstanceUID(ctx context.Context) (string, bool, error) {
	return i.Tag(ctx, "SOPInstanceUID")
}

// Series returns a fresh, unfetched node for the parent series.
func (i *Instance) Series(ctx context.Context) (*Series, error) {
	id, err := i.parentID(ctx, "ParentSeries")
	if err != nil {
		return nil, err
	}
	return newSeries(i.transport, id), nil
}

// PreviewURL is the archive locator of the rendered preview. It is not fetched.
func (i *Instance) PreviewURL() string {
	return i.transport.URL(i.Path() + "/preview")
}
