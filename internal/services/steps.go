package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/imyashkale/deviceserver/internal/greengrass"
	"github.com/imyashkale/deviceserver/internal/logger"
	"github.com/imyashkale/deviceserver/internal/models"
	"gopkg.in/yaml.v2"
)

// step is one stage of the association chain. Steps run strictly in
// order over the shared AssociationRequest; a step that records a
// whole-task failure halts the chain, and the terminal persistence step
// runs regardless.
type step struct {
	name string
	run  func(ctx context.Context, req *AssociationRequest) error
}

// runSteps executes the chain with early exit. It never runs the
// terminal persistence step; the caller does, exactly once, on every
// path.
func (s *AssociationService) runSteps(ctx context.Context, req *AssociationRequest) error {
	for _, st := range s.steps {
		if req.Failed() {
			logger.WithTask(req.Task.TaskID, req.Group.Name).WithField("halted_before", st.name).Info("Chain halted by recorded failure")
			return nil
		}
		logger.WithTask(req.Task.TaskID, req.Group.Name).WithField("step", st.name).Debug("Running chain step")
		if err := st.run(ctx, req); err != nil {
			return fmt.Errorf("%s: %w", st.name, err)
		}
	}
	return nil
}

// stepResolveThings resolves registry identities for the task's
// devices. On the first pass unregistered things are left unresolved for
// the provisioning step; on the strict second pass (after provisioning)
// a device that still cannot be resolved is failed individually.
func (s *AssociationService) stepResolveThings(strict bool) func(ctx context.Context, req *AssociationRequest) error {
	return func(ctx context.Context, req *AssociationRequest) error {
		for _, device := range req.ActiveDevices() {
			if device.ThingArn != "" {
				continue
			}
			info, err := s.things.GetThing(ctx, device.ThingName)
			if err != nil {
				if isNotFound(err) {
					if strict {
						device.Fail(fmt.Sprintf("thing %s not resolvable after provisioning", device.ThingName))
					}
					continue
				}
				return err
			}
			device.ThingArn = info.ThingArn
		}
		return nil
	}
}

// stepExistingAssociation fails devices that are already associated with
// a different group. A conflicting device does not abort the task;
// sibling devices proceed.
func (s *AssociationService) stepExistingAssociation(ctx context.Context, req *AssociationRequest) error {
	for _, device := range req.ActiveDevices() {
		existing, err := s.deviceRepo.Get(ctx, device.ThingName)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return err
		}
		if existing.GroupName != "" && existing.GroupName != req.Group.Name {
			logger.WithFields(map[string]interface{}{
				"thing_name":    device.ThingName,
				"current_group": existing.GroupName,
				"target_group":  req.Group.Name,
			}).Warn("Device already associated with another group")
			device.Fail(fmt.Sprintf("device %s is already associated with group %s", device.ThingName, existing.GroupName))
		}
	}
	return nil
}

// stepProvisionThing registers things that do not exist yet, using each
// device's provisioning template. A provisioning failure is recorded on
// the device, not the task.
func (s *AssociationService) stepProvisionThing(ctx context.Context, req *AssociationRequest) error {
	for _, device := range req.ActiveDevices() {
		if device.ThingArn != "" {
			continue
		}
		if _, err := s.things.ProvisionThing(ctx, device.ThingName, device.ProvisioningTemplate); err != nil {
			device.Fail(fmt.Sprintf("provisioning failed: %v", err))
		}
	}
	return nil
}

// coreConfig is the parsed template document applied to the group's core.
type coreConfig struct {
	SyncShadow   bool   `yaml:"syncShadow"`
	LoggingLevel string `yaml:"loggingLevel"`
}

// stepCoreConfig validates the group's core against the resolved
// template. A group without exactly one core, or with an unparsable
// template document, fails as a whole.
func (s *AssociationService) stepCoreConfig(ctx context.Context, req *AssociationRequest) error {
	if req.GGCoreVersion == nil || len(req.GGCoreVersion.Cores) != 1 {
		n := 0
		if req.GGCoreVersion != nil {
			n = len(req.GGCoreVersion.Cores)
		}
		req.Fail(fmt.Sprintf("group %s must have exactly one core (found %d)", req.Group.Name, n))
		return nil
	}

	var cfg coreConfig
	if err := yaml.Unmarshal([]byte(req.Template.Document), &cfg); err != nil {
		req.Fail(fmt.Sprintf("template %s v%d is not a valid core config: %v", req.Template.Name, req.Template.VersionNo, err))
		return nil
	}
	req.CoreConfig = &cfg
	return nil
}

// stepGetPrincipal resolves or creates the certificate attached to each
// device's thing. Principal failures are per-device.
func (s *AssociationService) stepGetPrincipal(ctx context.Context, req *AssociationRequest) error {
	for _, device := range req.ActiveDevices() {
		principals, err := s.things.GetPrincipals(ctx, device.ThingName)
		if err != nil {
			device.Fail(fmt.Sprintf("principal lookup failed: %v", err))
			continue
		}
		if len(principals) > 0 {
			device.CertificateArn = principals[0]
			continue
		}

		certArn, err := s.things.CreatePrincipal(ctx, device.ThingName)
		if err != nil {
			device.Fail(fmt.Sprintf("principal creation failed: %v", err))
			continue
		}
		device.CertificateArn = certArn
	}
	return nil
}

// stepCreateGroupVersion assembles a new device definition version from
// the surviving devices plus the group's existing ones, and publishes a
// new group version referencing it. No surviving devices fails the task.
func (s *AssociationService) stepCreateGroupVersion(ctx context.Context, req *AssociationRequest) error {
	active := req.ActiveDevices()
	if len(active) == 0 {
		req.Fail("no devices eligible for association")
		return nil
	}

	devices := make([]greengrass.DeviceInfo, 0, len(req.GGDeviceVersion.Devices)+len(active))
	existing := make(map[string]bool, len(req.GGDeviceVersion.Devices))
	for _, d := range req.GGDeviceVersion.Devices {
		devices = append(devices, d)
		existing[d.ThingArn] = true
	}

	syncShadow := false
	if req.CoreConfig != nil {
		syncShadow = req.CoreConfig.SyncShadow
	}
	for _, device := range active {
		if existing[device.ThingArn] {
			continue
		}
		devices = append(devices, greengrass.DeviceInfo{
			ID:             uuid.New().String(),
			ThingArn:       device.ThingArn,
			CertificateArn: device.CertificateArn,
			SyncShadow:     syncShadow,
		})
	}

	definitionArn, err := s.controlPlane.CreateDeviceDefinitionVersion(ctx, req.Group.Name+"-devices", devices)
	if err != nil {
		return err
	}

	version := *req.GGGroupVersion
	version.DeviceDefinitionVersionArn = definitionArn

	versionID, err := s.controlPlane.CreateGroupVersion(ctx, req.GGGroup.ID, &version)
	if err != nil {
		return err
	}
	req.NewGroupVersionID = versionID
	return nil
}

// saveGroup is the terminal persistence step: the single place final
// per-device and per-task statuses are written. It runs exactly once per
// execution, either as the natural end of the chain or defensively from
// the orchestrator's failure path, so no task stays InProgress.
func (s *AssociationService) saveGroup(ctx context.Context, req *AssociationRequest) {
	log := logger.WithTask(req.Task.TaskID, req.Group.Name)

	if !req.Failed() {
		req.Group.TaskStatus = models.StatusSuccess
		if req.NewGroupVersionID != "" {
			req.Group.VersionID = req.NewGroupVersionID
		}
	}
	req.Task.Status = req.Group.TaskStatus
	req.Task.UpdatedAt = time.Now().UTC()

	for i := range req.Task.Devices {
		device := &req.Task.Devices[i]
		if device.Status == models.StatusFailure {
			continue
		}
		device.Status = req.Task.Status
		if req.Task.Status == models.StatusFailure {
			device.StatusMessage = req.Group.StatusMessage
		} else {
			device.GroupName = req.Group.Name
		}
	}

	// Device records first, then the task, then the group outcome. Each
	// write is awaited; a slice of persisted state beats none. Failed
	// devices are not written to the device store: a device rejected for
	// belonging to another group must keep that group's record, and the
	// task record already carries every per-device failure.
	for i := range req.Task.Devices {
		if req.Task.Devices[i].Status == models.StatusFailure {
			continue
		}
		if err := s.deviceRepo.Save(ctx, &req.Task.Devices[i]); err != nil {
			log.WithFields(map[string]interface{}{
				"thing_name": req.Task.Devices[i].ThingName,
				"error":      err.Error(),
			}).Error("Failed to persist device record")
		}
	}
	if err := s.taskRepo.Save(ctx, req.Task); err != nil {
		log.WithField("error", err.Error()).Error("Failed to persist task record")
	}
	if err := s.groupRepo.Save(ctx, req.Group); err != nil {
		log.WithField("error", err.Error()).Error("Failed to persist group record")
	}

	log.WithField("status", string(req.Task.Status)).Info("Association task finished")
}
