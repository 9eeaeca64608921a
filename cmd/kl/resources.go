package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	keylinesdk "keyline/sdk/go"
)

func accountCmd() *cobra.Command {
	acct := &cobra.Command{Use: "account", Short: "Manage user accounts"}
	acct.AddCommand(accountListCmd())
	acct.AddCommand(accountCreateCmd())
	acct.AddCommand(accountUpdateCmd())
	acct.AddCommand(accountDeleteCmd())
	return acct
}

func printAccounts(items []keylinesdk.Account) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	rows := make([]table.Row, 0, len(items))
	for _, a := range items {
		rows = append(rows, table.Row{a.ID, a.Username, a.Name, a.Email, a.Phone, a.Role})
	}
	renderTable(table.Row{"ID", "Username", "Name", "Email", "Phone", "Role"}, rows)
	return nil
}

func accountListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: withClient(func(ctx context.Context, c *keylinesdk.Client) error {
			items, err := c.Accounts(ctx, role)
			if err != nil {
				return err
			}
			return printAccounts(items)
		}),
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter (supervisor|staff)")
	return cmd
}

func accountFlags(cmd *cobra.Command, in *keylinesdk.AccountInput) {
	cmd.Flags().StringVar(&in.Username, "username", "", "login name")
	cmd.Flags().StringVar(&in.Password, "password", "", "password")
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "email")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "phone")
	cmd.Flags().StringVar(&in.Role, "role", "staff", "supervisor|staff")
}

func accountCreateCmd() *cobra.Command {
	var in keylinesdk.AccountInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		RunE: withClient(func(ctx context.Context, c *keylinesdk.Client) error {
			a, err := c.CreateAccount(ctx, in)
			if err != nil {
				return err
			}
			return printAccounts([]keylinesdk.Account{a})
		}),
	}
	accountFlags(cmd, &in)
	return cmd
}

func accountUpdateCmd() *cobra.Command {
	var in keylinesdk.AccountInput
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an account; unset flags keep their current values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *keylinesdk.Client) error {
				current, err := findAccount(ctx, c, args[0])
				if err != nil {
					return err
				}
				merged := keylinesdk.AccountInput{
					Username: pick(cmd, "username", in.Username, current.Username),
					Password: in.Password,
					Name:     pick(cmd, "name", in.Name, current.Name),
					Email:    pick(cmd, "email", in.Email, current.Email),
					Phone:    pick(cmd, "phone", in.Phone, current.Phone),
					Role:     pick(cmd, "role", in.Role, string(current.Role)),
				}
				a, err := c.UpdateAccount(ctx, args[0], merged)
				if err != nil {
					return err
				}
				return printAccounts([]keylinesdk.Account{a})
			})(cmd, args)
		},
	}
	accountFlags(cmd, &in)
	return cmd
}

func findAccount(ctx context.Context, c *keylinesdk.Client, id string) (keylinesdk.Account, error) {
	me, err := c.WhoAmI(ctx)
	if err == nil && me.Account.ID == id {
		return me.Account, nil
	}
	items, err := c.Accounts(ctx, "")
	if err != nil {
		return keylinesdk.Account{}, err
	}
	for _, a := range items {
		if a.ID == id {
			return a, nil
		}
	}
	return keylinesdk.Account{}, fmt.Errorf("account %s not found", id)
}

func accountDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an account, releasing its keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *keylinesdk.Client) error {
				return c.DeleteAccount(ctx, args[0])
			})(cmd, args)
		},
	}
}

func keyCmd() *cobra.Command {
	k := &cobra.Command{Use: "key", Short: "Manage the key inventory"}
	k.AddCommand(keyListCmd())
	k.AddCommand(keyCreateCmd())
	k.AddCommand(keyUpdateCmd())
	k.AddCommand(keyDeleteCmd())
	return k
}

func printKeys(items []keylinesdk.Key) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	rows := make([]table.Row, 0, len(items))
	for _, k := range items {
		rows = append(rows, table.Row{k.ID, k.KeyNumber, k.Description, k.Status, k.AssignedToName, k.CreatedDate})
	}
	renderTable(table.Row{"ID", "Number", "Description", "Status", "Holder", "Created"}, rows)
	return nil
}

func keyListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List keys",
		RunE: withClient(func(ctx context.Context, c *keylinesdk.Client) error {
			items, err := c.Keys(ctx, status)
			if err != nil {
				return err
			}
			return printKeys(items)
		}),
	}
	cmd.Flags().StringVar(&status, "status", "", "Available|Assigned")
	return cmd
}

func keyCreateCmd() *cobra.Command {
	var in keylinesdk.KeyInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a key",
		RunE: withClient(func(ctx context.Context, c *keylinesdk.Client) error {
			k, err := c.CreateKey(ctx, in)
			if err != nil {
				return err
			}
			return printKeys([]keylinesdk.Key{k})
		}),
	}
	cmd.Flags().StringVar(&in.KeyNumber, "number", "", "key number")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	_ = cmd.MarkFlagRequired("number")
	return cmd
}

func keyUpdateCmd() *cobra.Command {
	var in keylinesdk.KeyInput
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a key's number or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *keylinesdk.Client) error {
				current, err := c.GetKey(ctx, args[0])
				if err != nil {
					return err
				}
				k, err := c.UpdateKey(ctx, args[0], keylinesdk.KeyInput{
					KeyNumber:   pick(cmd, "number", in.KeyNumber, current.KeyNumber),
					Description: pick(cmd, "description", in.Description, current.Description),
				})
				if err != nil {
					return err
				}
				return printKeys([]keylinesdk.Key{k})
			})(cmd, args)
		},
	}
	cmd.Flags().StringVar(&in.KeyNumber, "number", "", "key number")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	return cmd
}

func keyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *keylinesdk.Client) error {
				return c.DeleteKey(ctx, args[0])
			})(cmd, args)
		},
	}
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Manage tasks and their checklists"}
	t.AddCommand(taskListCmd())
	t.AddCommand(taskShowCmd())
	t.AddCommand(taskCreateCmd())
	t.AddCommand(taskUpdateCmd())
	t.AddCommand(taskDeleteCmd())
	t.AddCommand(taskToggleCmd())
	t.AddCommand(taskCompleteCmd())
	return t
}

func progress(t keylinesdk.Task) string {
	done := 0
	for _, item := range t.TodoItems {
		if item.Completed {
			done++
		}
	}
	return fmt.Sprintf("%d/%d", done, len(t.TodoItems))
}

func printTasks(items []keylinesdk.Task) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	rows := make([]table.Row, 0, len(items))
	for _, t := range items {
		rows = append(rows, table.Row{t.ID, t.TaskName, t.AssignedTo, t.KeyNumber, t.DueDate, progress(t), t.Status})
	}
	renderTable(table.Row{"ID", "Task", "Assignee", "Key", "Due", "Checklist", "Status"}, rows)
	return nil
}

func printTask(t keylinesdk.Task) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	fmt.Printf("%s  %s  [%s]\nassignee: %s  key: %s  due: %s\n", t.ID, t.TaskName, t.Status, t.AssignedTo, t.KeyNumber, t.DueDate)
	rows := make([]table.Row, 0, len(t.TodoItems))
	for _, item := range t.TodoItems {
		mark := " "
		if item.Completed {
			mark = "x"
		}
		rows = append(rows, table.Row{"[" + mark + "]", item.ID, item.Text})
	}
	renderTable(table.Row{"", "Item", "Text"}, rows)
	return nil
}

func taskListCmd() *cobra.Command {
	var q keylinesdk.TaskQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: withClient(func(ctx context.Context, c *keylinesdk.Client) error {
			items, err := c.Tasks(ctx, q)
			if err != nil {
				return err
			}
			return printTasks(items)
		}),
	}
	cmd.Flags().StringVar(&q.AssignedToID, "assignee", "", "assignee account id")
	cmd.Flags().StringVar(&q.KeyID, "key", "", "key id")
	cmd.Flags().StringVar(&q.Status, "status", "", "pending|completed")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task with its checklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *keylinesdk.Client) error {
				t, err := c.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printTask(t)
			})(cmd, args)
		},
	}
}

type taskFlags struct {
	name, assignee, key, due string
	items                    []string
}

func (f *taskFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "task name")
	cmd.Flags().StringVar(&f.assignee, "assignee", "", "staff account id")
	cmd.Flags().StringVar(&f.key, "key", "", "key id to check out to the assignee")
	cmd.Flags().StringVar(&f.due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringArrayVar(&f.items, "item", nil, "checklist item (repeatable)")
}

func taskCreateCmd() *cobra.Command {
	var f taskFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: withClient(func(ctx context.Context, c *keylinesdk.Client) error {
			in := keylinesdk.TaskInput{TaskName: f.name, AssignedToID: f.assignee, KeyID: f.key, DueDate: f.due}
			for _, text := range f.items {
				in.TodoItems = append(in.TodoItems, keylinesdk.TodoItemInput{Text: text})
			}
			t, err := c.CreateTask(ctx, in)
			if err != nil {
				return err
			}
			return printTask(t)
		}),
	}
	f.bind(cmd)
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var f taskFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a pending task; --item replaces the checklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *keylinesdk.Client) error {
				current, err := c.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				in := keylinesdk.TaskInput{
					TaskName:     pick(cmd, "name", f.name, current.TaskName),
					AssignedToID: pick(cmd, "assignee", f.assignee, current.AssignedToID),
					KeyID:        pick(cmd, "key", f.key, current.KeyID),
					DueDate:      pick(cmd, "due", f.due, current.DueDate),
				}
				if cmd.Flags().Changed("item") {
					for _, text := range f.items {
						in.TodoItems = append(in.TodoItems, keylinesdk.TodoItemInput{Text: text})
					}
				} else {
					for _, item := range current.TodoItems {
						in.TodoItems = append(in.TodoItems, keylinesdk.TodoItemInput{ID: item.ID, Text: item.Text, Completed: item.Completed})
					}
				}
				t, err := c.UpdateTask(ctx, args[0], in)
				if err != nil {
					return err
				}
				return printTask(t)
			})(cmd, args)
		},
	}
	f.bind(cmd)
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	var keepKey bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task, returning its key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *keylinesdk.Client) error {
				return c.DeleteTask(ctx, args[0], !keepKey)
			})(cmd, args)
		},
	}
	cmd.Flags().BoolVar(&keepKey, "keep-key", false, "leave the key with the assignee")
	return cmd
}

func taskToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <task-id> <item-id>",
		Short: "Tick or untick a checklist item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *keylinesdk.Client) error {
				t, changed, err := c.ToggleItem(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if !changed {
					fmt.Fprintln(os.Stderr, "nothing changed")
				}
				return printTask(t)
			})(cmd, args)
		},
	}
}

func taskCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a task and return its key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *keylinesdk.Client) error {
				t, err := c.CompleteTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printTask(t)
			})(cmd, args)
		},
	}
}

func historyCmd() *cobra.Command {
	var q keylinesdk.HistoryQuery
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show key checkouts and returns, newest first",
		RunE: withClient(func(ctx context.Context, c *keylinesdk.Client) error {
			items, err := c.History(ctx, q)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			rows := make([]table.Row, 0, len(items))
			for _, h := range items {
				rows = append(rows, table.Row{h.Timestamp, h.KeyNumber, h.Action, h.StaffName})
			}
			renderTable(table.Row{"When", "Key", "Action", "Staff"}, rows)
			return nil
		}),
	}
	cmd.Flags().StringVar(&q.StaffID, "staff", "", "staff account id")
	cmd.Flags().StringVar(&q.KeyID, "key", "", "key id")
	cmd.Flags().StringVar(&q.Action, "action", "", "checkout|return")
	return cmd
}

func reportCmd() *cobra.Command {
	r := &cobra.Command{Use: "report", Short: "Generate and download reports"}
	r.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List generated reports",
		RunE: withClient(func(ctx context.Context, c *keylinesdk.Client) error {
			items, err := c.Reports(ctx)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			rows := make([]table.Row, 0, len(items))
			for _, rep := range items {
				rows = append(rows, table.Row{rep.ID, rep.Name, rep.Format, rep.Size, rep.GeneratedAt, rep.GeneratedBy})
			}
			renderTable(table.Row{"ID", "Name", "Format", "Bytes", "Generated", "By"}, rows)
			return nil
		}),
	})

	var name, format string
	gen := &cobra.Command{
		Use:   "generate",
		Short: "Render and archive a report",
		RunE: withClient(func(ctx context.Context, c *keylinesdk.Client) error {
			rep, err := c.GenerateReport(ctx, name, format)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(rep)
			}
			fmt.Printf("generated %s (%s, %d bytes)\n", rep.ID, rep.Format, rep.Size)
			return nil
		}),
	}
	gen.Flags().StringVar(&name, "name", "", "report name")
	gen.Flags().StringVar(&format, "format", "text", "text|csv|html|markdown")
	_ = gen.MarkFlagRequired("name")
	r.AddCommand(gen)

	var out string
	dl := &cobra.Command{
		Use:   "download <id>",
		Short: "Fetch a report payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *keylinesdk.Client) error {
				data, _, err := c.DownloadReport(ctx, args[0])
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					_, err = os.Stdout.Write(data)
					return err
				}
				return os.WriteFile(out, data, 0o644)
			})(cmd, args)
		},
	}
	dl.Flags().StringVarP(&out, "output", "o", "", "write to file instead of stdout")
	r.AddCommand(dl)
	return r
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Dashboard counters",
		RunE: withClient(func(ctx context.Context, c *keylinesdk.Client) error {
			s, err := c.Stats(ctx)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(s)
			}
			renderTable(table.Row{"Metric", "Value"}, []table.Row{
				{"staff", s.TotalStaff},
				{"keys", s.TotalKeys},
				{"keys available", s.AvailableKeys},
				{"keys assigned", s.AssignedKeys},
				{"tasks", s.TotalTasks},
				{"tasks pending", s.PendingTasks},
				{"tasks completed", s.CompletedTasks},
			})
			return nil
		}),
	}
}

func eventsCmd() *cobra.Command {
	var after, evtType string
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail the audit event log",
		RunE: withClient(func(ctx context.Context, c *keylinesdk.Client) error {
			page, err := c.EventsPage(ctx, limit, after, evtType)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(page)
			}
			rows := make([]table.Row, 0, len(page.Items))
			for _, e := range page.Items {
				rows = append(rows, table.Row{e.ID, e.TS, e.Type, e.EntityKind + "/" + e.EntityID, e.ActorID})
			}
			renderTable(table.Row{"#", "When", "Type", "Entity", "Actor"}, rows)
			if page.NextCursor != "" {
				fmt.Printf("more: --after %s\n", page.NextCursor)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&after, "after", "", "cursor from a previous page")
	cmd.Flags().StringVar(&evtType, "type", "", "event type or kind, e.g. key or task.completed")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	return cmd
}

// pick returns the flag value when the flag was set, else the current value.
func pick(cmd *cobra.Command, flag, value, current string) string {
	if cmd.Flags().Changed(flag) {
		return strings.TrimSpace(value)
	}
	return current
}
