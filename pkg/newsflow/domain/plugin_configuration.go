package domain

import "github.com/RealZimboGuy/newsflow/pkg/newsflow/models"

// PluginConfiguration is a reusable, named set of properties for an action.
// Jobs and step actions refer to it by id; it outlives any single job.
type PluginConfiguration struct {
	ID         int64
	Name       string
	Action     string
	Properties []PluginConfigurationProperty
	// OnComplete lists configurations to schedule after a successful run.
	OnComplete []int64
}

type PluginConfigurationProperty struct {
	ID              int64
	ConfigurationID int64
	Key             string
	Value           string
}

func (p *PluginConfiguration) PropertyMap() models.Properties {
	pairs := make([]models.Property, 0, len(p.Properties))
	for _, prop := range p.Properties {
		pairs = append(pairs, models.Property{Key: prop.Key, Value: prop.Value})
	}
	return models.PropertiesFrom(pairs)
}
