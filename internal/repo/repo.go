// Package repo stores exported engine snapshots in SQL for offline
// inspection. The engine never reads from it.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"keyline/internal/domain"
	"keyline/internal/ids"
)

type Repo struct {
	DB  *sqlx.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

// SnapshotInfo describes one stored export.
type SnapshotInfo struct {
	ID         string `db:"id" json:"id"`
	TakenAt    string `db:"taken_at" json:"taken_at"`
	ExportedAt string `db:"exported_at" json:"exported_at"`
	Accounts   int    `db:"accounts" json:"accounts"`
	Keys       int    `db:"keys" json:"keys"`
	Tasks      int    `db:"tasks" json:"tasks"`
	History    int    `db:"history" json:"history"`
}

type accountRow struct {
	ID       string `db:"id"`
	Username string `db:"username"`
	Name     string `db:"name"`
	Email    string `db:"email"`
	Phone    string `db:"phone"`
	Role     string `db:"role"`
}

type keyRow struct {
	ID             string `db:"id"`
	KeyNumber      string `db:"key_number"`
	Description    string `db:"description"`
	CreatedDate    string `db:"created_date"`
	Status         string `db:"status"`
	AssignedTo     string `db:"assigned_to"`
	AssignedToName string `db:"assigned_to_name"`
}

type taskRow struct {
	ID           string `db:"id"`
	TaskName     string `db:"task_name"`
	AssignedTo   string `db:"assigned_to"`
	AssignedToID string `db:"assigned_to_id"`
	KeyID        string `db:"key_id"`
	KeyNumber    string `db:"key_number"`
	DueDate      string `db:"due_date"`
	Status       string `db:"status"`
	TodoItems    string `db:"todo_items"`
}

type historyRow struct {
	ID        string `db:"id"`
	Seq       int64  `db:"seq"`
	KeyID     string `db:"key_id"`
	KeyNumber string `db:"key_number"`
	Action    string `db:"action"`
	StaffID   string `db:"staff_id"`
	StaffName string `db:"staff_name"`
	TS        string `db:"ts"`
}

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// SaveSnapshot writes snap in one transaction and returns the new export id.
// Passwords are never stored.
func (r Repo) SaveSnapshot(ctx context.Context, snap domain.Snapshot) (string, error) {
	now := r.now()
	id := ids.Sortable(now)
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO snapshots(id,taken_at,exported_at) VALUES (?,?,?)`),
		id, snap.TakenAt, now.UTC().Format(time.RFC3339)); err != nil {
		return "", fmt.Errorf("insert snapshot: %w", err)
	}
	for _, a := range snap.Accounts {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO snapshot_accounts(snapshot_id,id,username,name,email,phone,role) VALUES (?,?,?,?,?,?,?)`),
			id, a.ID, a.Username, a.Name, a.Email, a.Phone, string(a.Role)); err != nil {
			return "", fmt.Errorf("insert account %s: %w", a.ID, err)
		}
	}
	for _, k := range snap.Keys {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO snapshot_keys(snapshot_id,id,key_number,description,created_date,status,assigned_to,assigned_to_name) VALUES (?,?,?,?,?,?,?,?)`),
			id, k.ID, k.KeyNumber, k.Description, k.CreatedDate, string(k.Status), k.AssignedTo, k.AssignedToName); err != nil {
			return "", fmt.Errorf("insert key %s: %w", k.ID, err)
		}
	}
	for _, t := range snap.Tasks {
		items := t.TodoItems
		if items == nil {
			items = []domain.TodoItem{}
		}
		encoded, err := json.Marshal(items)
		if err != nil {
			return "", err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO snapshot_tasks(snapshot_id,id,task_name,assigned_to,assigned_to_id,key_id,key_number,due_date,status,todo_items) VALUES (?,?,?,?,?,?,?,?,?,?)`),
			id, t.ID, t.TaskName, t.AssignedTo, t.AssignedToID, t.KeyID, t.KeyNumber, t.DueDate, string(t.Status), string(encoded)); err != nil {
			return "", fmt.Errorf("insert task %s: %w", t.ID, err)
		}
	}
	for _, h := range snap.History {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO snapshot_history(snapshot_id,id,seq,key_id,key_number,action,staff_id,staff_name,ts) VALUES (?,?,?,?,?,?,?,?,?)`),
			id, h.ID, h.Seq, h.KeyID, h.KeyNumber, string(h.Action), h.StaffID, h.StaffName, h.Timestamp); err != nil {
			return "", fmt.Errorf("insert history %s: %w", h.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// LoadSnapshot reads an export back. An empty id loads the latest one.
func (r Repo) LoadSnapshot(ctx context.Context, id string) (domain.Snapshot, error) {
	var snap domain.Snapshot
	var info SnapshotInfo
	var err error
	if id == "" {
		err = r.DB.GetContext(ctx, &info, `SELECT id,taken_at,exported_at FROM snapshots ORDER BY id DESC LIMIT 1`)
	} else {
		err = r.DB.GetContext(ctx, &info, r.DB.Rebind(`SELECT id,taken_at,exported_at FROM snapshots WHERE id=?`), id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return snap, ErrNotFound
	}
	if err != nil {
		return snap, err
	}
	snap.TakenAt = info.TakenAt

	var accounts []accountRow
	if err := r.DB.SelectContext(ctx, &accounts, r.DB.Rebind(`SELECT id,username,name,email,phone,role FROM snapshot_accounts WHERE snapshot_id=? ORDER BY id`), info.ID); err != nil {
		return snap, fmt.Errorf("load accounts: %w", err)
	}
	snap.Accounts = make([]domain.UserAccount, 0, len(accounts))
	for _, a := range accounts {
		snap.Accounts = append(snap.Accounts, domain.UserAccount{
			ID: a.ID, Username: a.Username, Name: a.Name, Email: a.Email, Phone: a.Phone, Role: domain.Role(a.Role),
		})
	}

	var keys []keyRow
	if err := r.DB.SelectContext(ctx, &keys, r.DB.Rebind(`SELECT id,key_number,description,created_date,status,assigned_to,assigned_to_name FROM snapshot_keys WHERE snapshot_id=? ORDER BY id`), info.ID); err != nil {
		return snap, fmt.Errorf("load keys: %w", err)
	}
	snap.Keys = make([]domain.Key, 0, len(keys))
	for _, k := range keys {
		snap.Keys = append(snap.Keys, domain.Key{
			ID: k.ID, KeyNumber: k.KeyNumber, Description: k.Description, CreatedDate: k.CreatedDate,
			Status: domain.KeyStatus(k.Status), AssignedTo: k.AssignedTo, AssignedToName: k.AssignedToName,
		})
	}

	var tasks []taskRow
	if err := r.DB.SelectContext(ctx, &tasks, r.DB.Rebind(`SELECT id,task_name,assigned_to,assigned_to_id,key_id,key_number,due_date,status,todo_items FROM snapshot_tasks WHERE snapshot_id=? ORDER BY id`), info.ID); err != nil {
		return snap, fmt.Errorf("load tasks: %w", err)
	}
	snap.Tasks = make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		task := domain.Task{
			ID: t.ID, TaskName: t.TaskName, AssignedTo: t.AssignedTo, AssignedToID: t.AssignedToID,
			KeyID: t.KeyID, KeyNumber: t.KeyNumber, DueDate: t.DueDate, Status: domain.TaskStatus(t.Status),
		}
		if err := json.Unmarshal([]byte(t.TodoItems), &task.TodoItems); err != nil {
			return snap, fmt.Errorf("decode todo items of task %s: %w", t.ID, err)
		}
		snap.Tasks = append(snap.Tasks, task)
	}

	var history []historyRow
	if err := r.DB.SelectContext(ctx, &history, r.DB.Rebind(`SELECT id,seq,key_id,key_number,action,staff_id,staff_name,ts FROM snapshot_history WHERE snapshot_id=? ORDER BY seq`), info.ID); err != nil {
		return snap, fmt.Errorf("load history: %w", err)
	}
	snap.History = make([]domain.KeyHistoryEntry, 0, len(history))
	for _, h := range history {
		snap.History = append(snap.History, domain.KeyHistoryEntry{
			ID: h.ID, Seq: h.Seq, KeyID: h.KeyID, KeyNumber: h.KeyNumber, Action: domain.HistoryAction(h.Action),
			StaffID: h.StaffID, StaffName: h.StaffName, Timestamp: h.TS,
		})
	}
	return snap, nil
}

// ListSnapshots returns stored exports with row counts, newest first.
func (r Repo) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	var out []SnapshotInfo
	err := r.DB.SelectContext(ctx, &out, `SELECT s.id, s.taken_at, s.exported_at,
		(SELECT COUNT(*) FROM snapshot_accounts a WHERE a.snapshot_id=s.id) AS accounts,
		(SELECT COUNT(*) FROM snapshot_keys k WHERE k.snapshot_id=s.id) AS keys,
		(SELECT COUNT(*) FROM snapshot_tasks t WHERE t.snapshot_id=s.id) AS tasks,
		(SELECT COUNT(*) FROM snapshot_history h WHERE h.snapshot_id=s.id) AS history
		FROM snapshots s ORDER BY s.id DESC`)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r Repo) DeleteSnapshot(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, r.DB.Rebind(`DELETE FROM snapshots WHERE id=?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
