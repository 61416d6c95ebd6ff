package tracker

import (
	"time"

	"toolwatch/internal/model"
)

// DefaultSettleWindow is how long after a drawer opens the camera view is
// treated as still settling.
const DefaultSettleWindow = time.Second

// DrawerState is either Closed or *Open. The unexported method seals the set.
type DrawerState interface {
	isDrawerState()
}

// Closed is the initial state: no drawer is open.
type Closed struct{}

// Open is a drawer episode in progress.
type Open struct {
	Drawer   string
	OpenedAt time.Time
	LastUser *model.User
	Initial  ToolSet
	Latest   ToolSet
}

func (Closed) isDrawerState() {}
func (*Open) isDrawerState()  {}

// Phase is the derived sub-state of an episode.
type Phase string

const (
	PhaseClosed   Phase = "closed"
	PhaseSettling Phase = "waiting_for_initial_detection"
	PhaseWatching Phase = "watching"
)

// Phase derives the sub-phase of the episode at now.
func (o *Open) Phase(now time.Time, settle time.Duration) Phase {
	if now.Sub(o.OpenedAt) < settle {
		return PhaseSettling
	}
	return PhaseWatching
}

// StateView is a read-only copy of the drawer state for diagnostics.
type StateView struct {
	State             string      `json:"state"`
	Phase             Phase       `json:"phase"`
	Drawer            string      `json:"drawer,omitempty"`
	OpenedAt          *time.Time  `json:"opened_at,omitempty"`
	LastUser          *model.User `json:"last_identified_user,omitempty"`
	InitialTools      []string    `json:"initial_tools,omitempty"`
	LatestTools       []string    `json:"latest_tools,omitempty"`
	BufferedSnapshots int         `json:"buffered_snapshots"`
	CurrentUser       *model.User `json:"current_user,omitempty"`
}

func viewOf(s DrawerState, now time.Time, settle time.Duration) StateView {
	switch st := s.(type) {
	case *Open:
		opened := st.OpenedAt
		v := StateView{
			State:        "open",
			Phase:        st.Phase(now, settle),
			Drawer:       st.Drawer,
			OpenedAt:     &opened,
			InitialTools: st.Initial.Sorted(),
			LatestTools:  st.Latest.Sorted(),
		}
		if st.LastUser != nil {
			u := *st.LastUser
			v.LastUser = &u
		}
		return v
	default:
		return StateView{State: "closed", Phase: PhaseClosed}
	}
}
