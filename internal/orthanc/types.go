package orthanc

// ChangeType names a lifecycle transition recorded in the archive change log.
// Values not listed here are passed through verbatim.
type ChangeType string

const (
	NewPatient        ChangeType = "NewPatient"
	StablePatient     ChangeType = "StablePatient"
	NewStudy          ChangeType = "NewStudy"
	StableStudy       ChangeType = "StableStudy"
	NewSeries         ChangeType = "NewSeries"
	StableSeries      ChangeType = "StableSeries"
	NewInstance       ChangeType = "NewInstance"
	Deleted           ChangeType = "Deleted"
	UpdatedAttachment ChangeType = "UpdatedAttachment"
)

// ChangeEvent is one entry of the /changes log. Field names match the JSON
// keys returned by Orthanc.
type ChangeEvent struct {
	ID           string     `json:"ID"`
	ChangeType   ChangeType `json:"ChangeType"`
	Seq          int64      `json:"Seq"`
	ResourceType string     `json:"ResourceType,omitempty"`
	Path         string     `json:"Path,omitempty"`
	Date         string     `json:"Date,omitempty"`
}

// ChangePage is one page of the change log as of the request time. Done only
// means nothing newer existed when the page was served; the log keeps growing.
type ChangePage struct {
	Changes []ChangeEvent `json:"Changes"`
	Done    bool          `json:"Done"`
	Last    int64         `json:"Last"`
}
