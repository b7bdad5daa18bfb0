package entity

import "context"

// Series exposes acquisition tags, stability and its instances.
type Series struct {
	*Node
	instances children[*Instance]
}

func newSeries(t Transport, id string) *Series {
	return &Series{Node: newNode(t, KindSeries, id)}
}

func (s *Series) Manufacturer(ctx context.Context) (string, bool, error) {
	return s.Tag(ctx, "Manufacturer")
}

func (s *Series) Modality(ctx context.Context) (string, bool, error) {
	return s.Tag(ctx, "Modality")
}

func (s *Series) Protocol(ctx context.Context) (string, bool, error) {
	return s.Tag(ctx, "ProtocolName")
}

func (s *Series) Sequence(ctx context.Context) (string, bool, error) {
	return s.Tag(ctx, "SequenceName")
}

func (s *Series) Description(ctx context.Context) (string, bool, error) {
	return s.Tag(ctx, "SeriesDescription")
}

func (s *Series) Number(ctx context.Context) (string, bool, error) {
	return s.Tag(ctx, "SeriesNumber")
}

func (s *Series) InstanceUID(ctx context.Context) (string, bool, error) {
	return s.Tag(ctx, "SeriesInstanceUID")
}

func (s *Series) Date(ctx context.Context) (Date, bool, error) {
	return s.DateTag(ctx, "SeriesDate")
}

func (s *Series) Time(ctx context.Context) (string, bool, error) {
	return s.Tag(ctx, "SeriesTime")
}

// Status is the archive's completeness verdict, e.g. "Complete" or "Unknown".
func (s *Series) Status(ctx context.Context) (string, bool, error) {
	return s.StringField(ctx, "Status")
}

func (s *Series) IsStable(ctx context.Context) (bool, bool, error) {
	return s.BoolField(ctx, "IsStable")
}

// Study returns a fresh, unfetched node for the parent study.
func (s *Series) Study(ctx context.Context) (*Study, error) {
	id, err := s.parentID(ctx, "ParentStudy")
	if err != nil {
		return nil, err
	}
	return newStudy(s.transport, id), nil
}

// Instances returns the series' instances in archive order, memoized until the
// series is reloaded.
func (s *Series) Instances(ctx context.Context) ([]*Instance, error) {
	return s.instances.resolve(ctx, s.Node, "Instances", func(id string) *Instance {
		return newInstance(s.transport, id)
	})
}

func (s *Series) InstanceCount(ctx context.Context) (int, error) {
	instances, err := s.Instances(ctx)
	if err != nil {
		return 0, err
	}
	return len(instances), nil
}

// MidInstance returns the instance whose IndexInSeries equals half the
// instance count, rounded down. Position in the list is not used: when no
// instance declares that index the result is absent. Each instance is fetched
// until the match is found.
func (s *Series) MidInstance(ctx context.Context) (*Instance, bool, error) {
	instances, err := s.Instances(ctx)
	if err != nil {
		return nil, false, err
	}
	target := int64(len(instances) / 2)
	for _, inst := range instances {
		idx, ok, err := inst.Index(ctx)
		if err != nil {
			return nil, false, err
		}
		if ok && idx == target {
			return inst, true, nil
		}
	}
	return nil, false, nil
}

// PreviewURL locates the rendered preview of the mid instance. Depending on
// the acquisition's slice order this is roughly the middle slice.
func (s *Series) PreviewURL(ctx context.Context) (string, bool, error) {
	inst, ok, err := s.MidInstance(ctx)
	if err != nil || !ok {
		return "", false, err
	}
	return inst.PreviewURL(), true, nil
}
