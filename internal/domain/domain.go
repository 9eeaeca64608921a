package domain

type Role string

const (
	RoleSupervisor Role = "supervisor"
	RoleStaff      Role = "staff"
)

func (r Role) Valid() bool {
	return r == RoleSupervisor || r == RoleStaff
}

type KeyStatus string

const (
	KeyAvailable KeyStatus = "Available"
	KeyAssigned  KeyStatus = "Assigned"
)

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
)

type HistoryAction string

const (
	ActionCheckout HistoryAction = "checkout"
	ActionReturn   HistoryAction = "return"
)

type UserAccount struct {
	ID       string `json:"id" yaml:"id"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password,omitempty" yaml:"password"`
	Name     string `json:"name" yaml:"name"`
	Email    string `json:"email" yaml:"email"`
	Phone    string `json:"phone" yaml:"phone"`
	Role     Role   `json:"role" yaml:"role" enum:"supervisor,staff"`
}

// Public strips the password for outbound views.
func (a UserAccount) Public() UserAccount {
	a.Password = ""
	return a
}

type Key struct {
	ID             string    `json:"id" yaml:"id"`
	KeyNumber      string    `json:"key_number" yaml:"key_number"`
	Description    string    `json:"description" yaml:"description"`
	CreatedDate    string    `json:"created_date" yaml:"created_date" format:"date"`
	Status         KeyStatus `json:"status" yaml:"status" enum:"Available,Assigned"`
	AssignedTo     string    `json:"assigned_to,omitempty" yaml:"assigned_to,omitempty"`
	AssignedToName string    `json:"assigned_to_name,omitempty" yaml:"assigned_to_name,omitempty"`
}

type TodoItem struct {
	ID        string `json:"id" yaml:"id"`
	Text      string `json:"text" yaml:"text"`
	Completed bool   `json:"completed" yaml:"completed"`
}

type Task struct {
	ID           string     `json:"id" yaml:"id"`
	TaskName     string     `json:"task_name" yaml:"task_name"`
	AssignedTo   string     `json:"assigned_to" yaml:"assigned_to"`
	AssignedToID string     `json:"assigned_to_id" yaml:"assigned_to_id"`
	KeyID        string     `json:"key_id,omitempty" yaml:"key_id,omitempty"`
	KeyNumber    string     `json:"key_number,omitempty" yaml:"key_number,omitempty"`
	DueDate      string     `json:"due_date" yaml:"due_date" format:"date"`
	TodoItems    []TodoItem `json:"todo_items" yaml:"todo_items"`
	Status       TaskStatus `json:"status" yaml:"status" enum:"pending,completed"`
}

// OpenItems returns the ids of checklist items not yet completed.
func (t Task) OpenItems() []string {
	var open []string
	for _, item := range t.TodoItems {
		if !item.Completed {
			open = append(open, item.ID)
		}
	}
	return open
}

// Clone copies the checklist so callers cannot mutate stored state.
func (t Task) Clone() Task {
	items := make([]TodoItem, len(t.TodoItems))
	copy(items, t.TodoItems)
	t.TodoItems = items
	return t
}

type KeyHistoryEntry struct {
	ID        string        `json:"id" yaml:"id"`
	Seq       int64         `json:"seq" yaml:"-"`
	KeyID     string        `json:"key_id" yaml:"key_id"`
	KeyNumber string        `json:"key_number" yaml:"key_number"`
	Action    HistoryAction `json:"action" yaml:"action" enum:"checkout,return"`
	StaffID   string        `json:"staff_id" yaml:"staff_id"`
	StaffName string        `json:"staff_name" yaml:"staff_name"`
	Timestamp string        `json:"timestamp" yaml:"timestamp" format:"date-time"`
}

type GeneratedReport struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Format      string `json:"format" enum:"text,csv,html,markdown"`
	GeneratedAt string `json:"generated_at" format:"date-time"`
	Size        int    `json:"size"`
	GeneratedBy string `json:"generated_by,omitempty"`
}

type Stats struct {
	TotalStaff     int `json:"total_staff"`
	TotalKeys      int `json:"total_keys"`
	TotalTasks     int `json:"total_tasks"`
	AvailableKeys  int `json:"available_keys"`
	AssignedKeys   int `json:"assigned_keys"`
	PendingTasks   int `json:"pending_tasks"`
	CompletedTasks int `json:"completed_tasks"`
}

type Snapshot struct {
	TakenAt  string            `json:"taken_at" format:"date-time"`
	Accounts []UserAccount     `json:"accounts"`
	Keys     []Key             `json:"keys"`
	Tasks    []Task            `json:"tasks"`
	History  []KeyHistoryEntry `json:"history"`
}

type Event struct {
	ID         int64  `json:"id"`
	UID        string `json:"uid"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id,omitempty"`
	Payload    string `json:"payload"`
}
