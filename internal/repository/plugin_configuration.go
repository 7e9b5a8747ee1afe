package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
)

// PluginConfigurationRepository stores named action configurations, their
// ordered properties and their on-complete chain.
type PluginConfigurationRepository struct {
	db *sql.DB
	d  Dialect
}

func NewPluginConfigurationRepository(db *sql.DB, d Dialect) *PluginConfigurationRepository {
	return &PluginConfigurationRepository{db: db, d: d}
}

// Save inserts a configuration or updates the one with the same name.
// Properties and the on-complete list are replaced, keeping their order.
func (r *PluginConfigurationRepository) Save(ctx context.Context, c *domain.PluginConfiguration) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, r.d.rebind(`SELECT id FROM plugin_configurations WHERE name = ?`), c.Name).Scan(&c.ID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			c.ID, err = insert(ctx, tx, r.d, `INSERT INTO plugin_configurations (name, action) VALUES (?, ?)`, c.Name, c.Action)
			if err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if _, err := exec(ctx, tx, r.d, `UPDATE plugin_configurations SET action = ? WHERE id = ?`, c.Action, c.ID); err != nil {
				return err
			}
		}

		if _, err := exec(ctx, tx, r.d, `DELETE FROM plugin_configuration_properties WHERE configuration_id = ?`, c.ID); err != nil {
			return err
		}
		for i := range c.Properties {
			p := &c.Properties[i]
			p.ConfigurationID = c.ID
			p.ID, err = insert(ctx, tx, r.d, `
				INSERT INTO plugin_configuration_properties (configuration_id, sort_order, prop_key, prop_value) VALUES (?, ?, ?, ?)`,
				c.ID, i, p.Key, p.Value)
			if err != nil {
				return err
			}
		}

		if _, err := exec(ctx, tx, r.d, `DELETE FROM plugin_configuration_on_complete WHERE configuration_id = ?`, c.ID); err != nil {
			return err
		}
		for i, next := range c.OnComplete {
			if _, err := exec(ctx, tx, r.d, `
				INSERT INTO plugin_configuration_on_complete (configuration_id, sort_order, next_configuration_id) VALUES (?, ?, ?)`,
				c.ID, i, next); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PluginConfigurationRepository) FindByID(ctx context.Context, id int64) (*domain.PluginConfiguration, error) {
	return r.findOne(ctx, `SELECT id, name, action FROM plugin_configurations WHERE id = ?`, id)
}

func (r *PluginConfigurationRepository) FindByName(ctx context.Context, name string) (*domain.PluginConfiguration, error) {
	return r.findOne(ctx, `SELECT id, name, action FROM plugin_configurations WHERE name = ?`, name)
}

func (r *PluginConfigurationRepository) FindAll(ctx context.Context) ([]domain.PluginConfiguration, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, action FROM plugin_configurations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	var out []domain.PluginConfiguration
	for rows.Next() {
		var c domain.PluginConfiguration
		if err := rows.Scan(&c.ID, &c.Name, &c.Action); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, c)
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

func (r *PluginConfigurationRepository) findOne(ctx context.Context, query string, args ...any) (*domain.PluginConfiguration, error) {
	var c domain.PluginConfiguration
	if err := r.db.QueryRowContext(ctx, r.d.rebind(query), args...).Scan(&c.ID, &c.Name, &c.Action); err != nil {
		return nil, notFound(err)
	}
	if err := r.load(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PluginConfigurationRepository) load(ctx context.Context, c *domain.PluginConfiguration) error {
	rows, err := r.db.QueryContext(ctx, r.d.rebind(`
		SELECT id, configuration_id, prop_key, prop_value
		FROM plugin_configuration_properties WHERE configuration_id = ? ORDER BY sort_order`), c.ID)
	if err != nil {
		return err
	}
	c.Properties = nil
	for rows.Next() {
		var p domain.PluginConfigurationProperty
		if err := rows.Scan(&p.ID, &p.ConfigurationID, &p.Key, &p.Value); err != nil {
			rows.Close()
			return err
		}
		c.Properties = append(c.Properties, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.db.QueryContext(ctx, r.d.rebind(`
		SELECT next_configuration_id FROM plugin_configuration_on_complete WHERE configuration_id = ? ORDER BY sort_order`), c.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	c.OnComplete = nil
	for rows.Next() {
		var next int64
		if err := rows.Scan(&next); err != nil {
			return err
		}
		c.OnComplete = append(c.OnComplete, next)
	}
	return rows.Err()
}
