package services

import (
	"github.com/imyashkale/deviceserver/internal/greengrass"
	"github.com/imyashkale/deviceserver/internal/models"
)

// AssociationRequest is the mutable context threaded through the step
// pipeline for one task. It is owned exclusively by the single chain
// execution: no two executions share an instance, so no locking is
// needed on it.
type AssociationRequest struct {
	Task  *models.DeviceTaskSummary
	Group *models.GroupItem

	// Resolved Greengrass metadata, populated before the chain starts.
	GGGroup         *greengrass.GroupInfo
	GGGroupVersion  *greengrass.GroupVersionInfo
	GGCoreVersion   *greengrass.CoreDefinitionInfo
	GGDeviceVersion *greengrass.DeviceDefinitionInfo
	Template        *models.TemplateItem

	// CoreConfig is parsed from the template document by the core-config
	// step and read by later steps.
	CoreConfig *coreConfig

	// NewGroupVersionID is set once a new group version has been published.
	NewGroupVersionID string
}

// Fail records a whole-task failure. The first failure wins; later
// calls never overwrite the recorded message.
func (r *AssociationRequest) Fail(message string) {
	r.Group.FailTask(message)
}

// Failed reports whether a whole-task failure has been recorded.
func (r *AssociationRequest) Failed() bool {
	return r.Group.TaskStatus == models.StatusFailure
}

// ActiveDevices returns the devices that have not individually failed.
func (r *AssociationRequest) ActiveDevices() []*models.DeviceItem {
	active := make([]*models.DeviceItem, 0, len(r.Task.Devices))
	for i := range r.Task.Devices {
		if r.Task.Devices[i].Status != models.StatusFailure {
			active = append(active, &r.Task.Devices[i])
		}
	}
	return active
}
