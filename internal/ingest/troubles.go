package ingest

import "fmt"

type (
	TroubleType int

	// Trouble is an error which has interrupted the ingestion of a
	// single item. Troubles never abort the batch: the item is parked
	// in the TROUBLED state and can be retried or aborted by the user.
	Trouble struct {
		error
		tType TroubleType
	}

	ResolutionType int
)

const (
	FileFailure TroubleType = iota
	StoreFailure
	GenericFailure

	Retry ResolutionType = iota
	Abort
)

var allowedResolutionTypes = map[TroubleType][]ResolutionType{
	FileFailure:    {Abort, Retry},
	StoreFailure:   {Abort, Retry},
	GenericFailure: {Abort, Retry},
}

func newTrouble(err error, tType TroubleType) Trouble {
	return Trouble{error: err, tType: tType}
}

func (t *Trouble) Type() TroubleType { return t.tType }

func (t *Trouble) AllowedResolutionTypes() []ResolutionType {
	if allowed, ok := allowedResolutionTypes[t.tType]; ok {
		return allowed
	}

	return []ResolutionType{}
}

func (t *Trouble) isResolutionTypeAllowed(resType ResolutionType) bool {
	for _, v := range t.AllowedResolutionTypes() {
		if v == resType {
			return true
		}
	}

	return false
}

func (t TroubleType) String() string {
	switch t {
	case FileFailure:
		return fmt.Sprintf("FILE_FAILURE[%d]", t)
	case StoreFailure:
		return fmt.Sprintf("STORE_FAILURE[%d]", t)
	case GenericFailure:
		return fmt.Sprintf("GENERIC_FAILURE[%d]", t)
	default:
		return fmt.Sprintf("UNKNOWN[%d]", t)
	}
}
