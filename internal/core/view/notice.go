package view

// Op names the user action a Notice reports on.
type Op int

const (
	OpLoad Op = iota + 1
	OpAdd
	OpRemove
	OpEdit
)

func (o Op) String() string {
	switch o {
	case OpLoad:
		return "load"
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	case OpEdit:
		return "edit"
	default:
		return "unknown"
	}
}

type Level int

const (
	Success Level = iota + 1
	Failure
)

func (l Level) String() string {
	if l == Success {
		return "success"
	}
	return "failure"
}

// Notice is a one-shot, dismissible outcome of a remote call. Nothing about
// it is kept in the view's state.
type Notice struct {
	Op      Op
	Level   Level
	ID      string // bookmark id, when the action targeted one
	Message string
	Err     error
}

var noticeMessages = map[Op][2]string{
	OpLoad:   {"Bookmarks loaded", "Failed to load bookmarks"},
	OpAdd:    {"Bookmark added", "Failed to add"},
	OpRemove: {"Deleted", "Delete failed"},
	OpEdit:   {"Updated", "Update failed"},
}

func newNotice(op Op, id string, err error) Notice {
	msgs := noticeMessages[op]
	if err != nil {
		return Notice{Op: op, Level: Failure, ID: id, Message: msgs[1], Err: err}
	}
	return Notice{Op: op, Level: Success, ID: id, Message: msgs[0]}
}
