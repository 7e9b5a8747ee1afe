package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/RealZimboGuy/newsflow/internal/workflow"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/core"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/models"
)

// WorkflowRepository stores workflow definitions: the workflow row, its
// states, steps and step actions.
type WorkflowRepository struct {
	db    *sql.DB
	d     Dialect
	clock core.Clock
}

func NewWorkflowRepository(db *sql.DB, d Dialect, clock core.Clock) *WorkflowRepository {
	return &WorkflowRepository{db: db, d: d, clock: clock}
}

const workflowColumns = `id, name, description, start_state_id, end_state_id, trash_state_id, flow_chart, created, updated`

const stateColumns = `id, workflow_id, name, description, actor_role, permission, show_in_inbox, treat_as_submitted, display_order`

// Save inserts a workflow or replaces the one with the same name.
//
// State ids on wf are only keys tying steps and the start/end/trash ids to
// states; they are rewritten to database ids. States are matched by name so
// content already sitting in a state keeps it. Steps and their actions are
// replaced wholesale. The flow chart is rebuilt.
func (r *WorkflowRepository) Save(ctx context.Context, wf *domain.Workflow) error {
	now := r.clock.Now().UTC()
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var created time.Time
		err := tx.QueryRowContext(ctx, r.d.rebind(`SELECT id, created FROM workflows WHERE name = ?`), wf.Name).Scan(&wf.ID, &created)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			id, err := insert(ctx, tx, r.d, `
				INSERT INTO workflows (name, description, start_state_id, end_state_id, trash_state_id, flow_chart, created, updated)
				VALUES (?, ?, 0, 0, 0, '', ?, ?)`,
				wf.Name, wf.Description, r.d.formatTime(now), r.d.formatTime(now))
			if err != nil {
				return err
			}
			wf.ID = id
			wf.Created = now
		case err != nil:
			return err
		default:
			wf.Created = created.UTC()
		}

		existing, err := r.stateIDsByName(ctx, tx, wf.ID)
		if err != nil {
			return err
		}
		ids := make(map[int64]int64, len(wf.States))
		for i := range wf.States {
			s := &wf.States[i]
			key := s.ID
			s.WorkflowID = wf.ID
			if id, ok := existing[s.Name]; ok {
				s.ID = id
				_, err = exec(ctx, tx, r.d, `
					UPDATE workflow_states
					SET description = ?, actor_role = ?, permission = ?, show_in_inbox = ?, treat_as_submitted = ?, display_order = ?
					WHERE id = ?`,
					s.Description, s.ActorRole, string(s.Permission), s.ShowInInbox, s.TreatAsSubmitted, s.DisplayOrder, s.ID)
			} else {
				s.ID, err = insert(ctx, tx, r.d, `
					INSERT INTO workflow_states (workflow_id, name, description, actor_role, permission, show_in_inbox, treat_as_submitted, display_order)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
					s.WorkflowID, s.Name, s.Description, s.ActorRole, string(s.Permission), s.ShowInInbox, s.TreatAsSubmitted, s.DisplayOrder)
			}
			if err != nil {
				return err
			}
			ids[key] = s.ID
		}
		wf.StartStateID = ids[wf.StartStateID]
		wf.EndStateID = ids[wf.EndStateID]
		wf.TrashStateID = ids[wf.TrashStateID]

		if _, err := exec(ctx, tx, r.d, `DELETE FROM workflow_step_actions WHERE step_id IN (SELECT id FROM workflow_steps WHERE workflow_id = ?)`, wf.ID); err != nil {
			return err
		}
		if _, err := exec(ctx, tx, r.d, `DELETE FROM workflow_steps WHERE workflow_id = ?`, wf.ID); err != nil {
			return err
		}
		for i := range wf.Steps {
			step := &wf.Steps[i]
			step.WorkflowID = wf.ID
			step.FromStateID = ids[step.FromStateID]
			step.ToStateID = ids[step.ToStateID]
			step.ID, err = insert(ctx, tx, r.d, `
				INSERT INTO workflow_steps (workflow_id, name, from_state_id, to_state_id) VALUES (?, ?, ?, ?)`,
				step.WorkflowID, step.Name, step.FromStateID, step.ToStateID)
			if err != nil {
				return err
			}
			for j := range step.Actions {
				a := &step.Actions[j]
				a.StepID = step.ID
				a.ID, err = insert(ctx, tx, r.d, `
					INSERT INTO workflow_step_actions (step_id, label, plugin_configuration_id, execution_order, delay_seconds)
					VALUES (?, ?, ?, ?, ?)`,
					a.StepID, a.Label, a.PluginConfigurationID, a.ExecutionOrder, a.DelaySeconds)
				if err != nil {
					return err
				}
			}
		}

		wf.Updated = now
		wf.FlowChart = workflow.BuildFlowChart(wf)
		_, err = exec(ctx, tx, r.d, `
			UPDATE workflows
			SET description = ?, start_state_id = ?, end_state_id = ?, trash_state_id = ?, flow_chart = ?, updated = ?
			WHERE id = ?`,
			wf.Description, wf.StartStateID, wf.EndStateID, wf.TrashStateID, wf.FlowChart, r.d.formatTime(now), wf.ID)
		return err
	})
}

func (r *WorkflowRepository) FindByID(ctx context.Context, id int64) (*domain.Workflow, error) {
	return r.findOne(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
}

func (r *WorkflowRepository) FindByName(ctx context.Context, name string) (*domain.Workflow, error) {
	return r.findOne(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE name = ?`, name)
}

// FindByStateID returns the workflow that owns the state.
func (r *WorkflowRepository) FindByStateID(ctx context.Context, stateID int64) (*domain.Workflow, error) {
	var workflowID int64
	err := r.db.QueryRowContext(ctx, r.d.rebind(`SELECT workflow_id FROM workflow_states WHERE id = ?`), stateID).Scan(&workflowID)
	if err != nil {
		return nil, notFound(err)
	}
	return r.FindByID(ctx, workflowID)
}

// FindAll returns every workflow with its states and steps, ordered by name.
func (r *WorkflowRepository) FindAll(ctx context.Context) ([]domain.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+workflowColumns+` FROM workflows ORDER BY name`)
	if err != nil {
		return nil, err
	}
	var out []domain.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *wf)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.load(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*domain.Workflow, error) {
	var wf domain.Workflow
	if err := row.Scan(&wf.ID, &wf.Name, &wf.Description, &wf.StartStateID, &wf.EndStateID, &wf.TrashStateID,
		&wf.FlowChart, &wf.Created, &wf.Updated); err != nil {
		return nil, err
	}
	wf.Created = wf.Created.UTC()
	wf.Updated = wf.Updated.UTC()
	return &wf, nil
}

func scanState(row rowScanner, s *domain.WorkflowState) error {
	var permission string
	if err := row.Scan(&s.ID, &s.WorkflowID, &s.Name, &s.Description, &s.ActorRole, &permission,
		&s.ShowInInbox, &s.TreatAsSubmitted, &s.DisplayOrder); err != nil {
		return err
	}
	s.Permission = models.Permission(permission)
	return nil
}

func (r *WorkflowRepository) findOne(ctx context.Context, query string, args ...any) (*domain.Workflow, error) {
	wf, err := scanWorkflow(r.db.QueryRowContext(ctx, r.d.rebind(query), args...))
	if err != nil {
		return nil, notFound(err)
	}
	if err := r.load(ctx, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

func (r *WorkflowRepository) load(ctx context.Context, wf *domain.Workflow) error {
	rows, err := r.db.QueryContext(ctx, r.d.rebind(`SELECT `+stateColumns+` FROM workflow_states WHERE workflow_id = ? ORDER BY display_order, id`), wf.ID)
	if err != nil {
		return err
	}
	wf.States = nil
	for rows.Next() {
		var s domain.WorkflowState
		if err := scanState(rows, &s); err != nil {
			rows.Close()
			return err
		}
		wf.States = append(wf.States, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.db.QueryContext(ctx, r.d.rebind(`SELECT id, workflow_id, name, from_state_id, to_state_id FROM workflow_steps WHERE workflow_id = ? ORDER BY id`), wf.ID)
	if err != nil {
		return err
	}
	wf.Steps = nil
	for rows.Next() {
		var s domain.WorkflowStep
		if err := rows.Scan(&s.ID, &s.WorkflowID, &s.Name, &s.FromStateID, &s.ToStateID); err != nil {
			rows.Close()
			return err
		}
		wf.Steps = append(wf.Steps, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range wf.Steps {
		step := &wf.Steps[i]
		rows, err := r.db.QueryContext(ctx, r.d.rebind(`
			SELECT id, step_id, label, plugin_configuration_id, execution_order, delay_seconds
			FROM workflow_step_actions WHERE step_id = ? ORDER BY execution_order, id`), step.ID)
		if err != nil {
			return err
		}
		for rows.Next() {
			var a domain.WorkflowStepAction
			if err := rows.Scan(&a.ID, &a.StepID, &a.Label, &a.PluginConfigurationID, &a.ExecutionOrder, &a.DelaySeconds); err != nil {
				rows.Close()
				return err
			}
			step.Actions = append(step.Actions, a)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (r *WorkflowRepository) stateIDsByName(ctx context.Context, q querier, workflowID int64) (map[string]int64, error) {
	rows, err := q.QueryContext(ctx, r.d.rebind(`SELECT id, name FROM workflow_states WHERE workflow_id = ?`), workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[name] = id
	}
	return out, rows.Err()
}
