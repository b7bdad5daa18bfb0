package entity

import "fmt"

// Kind is one level of the imaging hierarchy.
type Kind int

const (
	KindPatient Kind = iota
	KindStudy
	KindSeries
	KindInstance
)

func (k Kind) String() string {
	switch k {
	case KindPatient:
		return "Patient"
	case KindStudy:
		return "Study"
	case KindSeries:
		return "Series"
	case KindInstance:
		return "Instance"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Collection is the REST collection the kind lives under.
func (k Kind) Collection() string {
	switch k {
	case KindPatient:
		return "patients"
	case KindStudy:
		return "studies"
	case KindSeries:
		return "series"
	case KindInstance:
		return "instances"
	}
	return ""
}

// ParseKind accepts either the kind name ("Study") or its collection
// ("studies"), which is how the change log reports ResourceType.
func ParseKind(s string) (Kind, bool) {
	for _, k := range []Kind{KindPatient, KindStudy, KindSeries, KindInstance} {
		if s == k.String() || s == k.Collection() {
			return k, true
		}
	}
	return 0, false
}

// EntityRef is a purely relational handle on a remote resource. It never holds
// fetched data.
type EntityRef struct {
	Kind Kind
	ID   string
}

// Path is the resource path of the entity snapshot, e.g. /studies/{id}.
func (r EntityRef) Path() string {
	return "/" + r.Kind.Collection() + "/" + r.ID
}

func (r EntityRef) String() string {
	return r.Kind.String() + "(" + r.ID + ")"
}
