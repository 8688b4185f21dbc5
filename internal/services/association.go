package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/imyashkale/deviceserver/internal/greengrass"
	"github.com/imyashkale/deviceserver/internal/logger"
	"github.com/imyashkale/deviceserver/internal/models"
	"github.com/imyashkale/deviceserver/internal/queue"
	"github.com/imyashkale/deviceserver/internal/repository"
	"golang.org/x/sync/errgroup"
)

// ControlPlane is the subset of the Greengrass control plane the
// association flow depends on.
type ControlPlane interface {
	GetGroupInfo(ctx context.Context, id string) (*greengrass.GroupInfo, error)
	GetGroupVersionInfo(ctx context.Context, groupID, versionID string) (*greengrass.GroupVersionInfo, error)
	GetCoreInfo(ctx context.Context, arn string) (*greengrass.CoreDefinitionInfo, error)
	GetDeviceInfo(ctx context.Context, arn string) (*greengrass.DeviceDefinitionInfo, error)
	CreateDeviceDefinitionVersion(ctx context.Context, name string, devices []greengrass.DeviceInfo) (string, error)
	CreateGroupVersion(ctx context.Context, groupID string, version *greengrass.GroupVersionInfo) (string, error)
}

// ThingRegistry is the subset of the IoT registry the association flow
// depends on.
type ThingRegistry interface {
	GetThing(ctx context.Context, thingName string) (*greengrass.ThingInfo, error)
	ProvisionThing(ctx context.Context, thingName, templateName string) (*greengrass.ThingInfo, error)
	GetPrincipals(ctx context.Context, thingName string) ([]string, error)
	CreatePrincipal(ctx context.Context, thingName string) (string, error)
}

// AssociationService orchestrates device-association tasks: the fast
// synchronous creation path and the queue-driven execution path.
type AssociationService struct {
	taskRepo     repository.TaskRepository
	deviceRepo   repository.DeviceRepository
	groupRepo    repository.GroupRepository
	templateRepo repository.TemplateRepository
	publisher    queue.Publisher
	controlPlane ControlPlane
	things       ThingRegistry
	steps        []step
}

// NewAssociationService creates a new association service with its step
// pipeline assembled in the fixed execution order.
func NewAssociationService(
	taskRepo repository.TaskRepository,
	deviceRepo repository.DeviceRepository,
	groupRepo repository.GroupRepository,
	templateRepo repository.TemplateRepository,
	publisher queue.Publisher,
	controlPlane ControlPlane,
	things ThingRegistry,
) *AssociationService {
	s := &AssociationService{
		taskRepo:     taskRepo,
		deviceRepo:   deviceRepo,
		groupRepo:    groupRepo,
		templateRepo: templateRepo,
		publisher:    publisher,
		controlPlane: controlPlane,
		things:       things,
	}
	s.steps = []step{
		{"get_thing", s.stepResolveThings(false)},
		{"existing_association", s.stepExistingAssociation},
		{"provision_thing", s.stepProvisionThing},
		{"get_thing_again", s.stepResolveThings(true)},
		{"core_config", s.stepCoreConfig},
		{"get_principal", s.stepGetPrincipal},
		{"create_group_version", s.stepCreateGroupVersion},
	}
	return s
}

// CreateDeviceAssociationTask validates the request, persists a new
// Waiting task and publishes it for asynchronous processing. The task is
// persisted before it is enqueued so a consumer reading the queue can
// always find the durable record. The returned summary is a Waiting
// snapshot; callers poll GetDeviceAssociationTask for completion.
func (s *AssociationService) CreateDeviceAssociationTask(ctx context.Context, groupName string, devices []models.DeviceItem) (*models.DeviceTaskSummary, error) {
	if groupName == "" {
		return nil, validationErrorf("group name is required")
	}
	if len(devices) == 0 {
		return nil, validationErrorf("at least one device is required")
	}
	for i, d := range devices {
		if d.ThingName == "" || d.Type == "" || d.ProvisioningTemplate == "" {
			return nil, validationErrorf("device %d: thingName, type and provisioningTemplate are required", i)
		}
	}

	group, err := s.groupRepo.Get(ctx, groupName)
	if err != nil {
		return nil, err
	}

	// The group must be resolvable in the control plane before any task
	// is recorded; an unreachable control plane is surfaced, not retried.
	if _, err := s.controlPlane.GetGroupInfo(ctx, group.ID); err != nil {
		return nil, err
	}

	task := models.NewDeviceTaskSummary(groupName, devices)

	if err := s.taskRepo.Save(ctx, task); err != nil {
		return nil, err
	}
	if err := s.publisher.Publish(ctx, task); err != nil {
		return nil, fmt.Errorf("task %s persisted but not enqueued: %w", task.TaskID, err)
	}

	logger.WithTask(task.TaskID, groupName).Info("Device association task created")
	return task, nil
}

// GetDeviceAssociationTask retrieves a task snapshot by group and task ID
func (s *AssociationService) GetDeviceAssociationTask(ctx context.Context, groupName, taskID string) (*models.DeviceTaskSummary, error) {
	if groupName == "" || taskID == "" {
		return nil, validationErrorf("group name and task id are required")
	}
	return s.taskRepo.Get(ctx, groupName, taskID)
}

// GetDevice retrieves the association record for one device
func (s *AssociationService) GetDevice(ctx context.Context, thingName string) (*models.DeviceItem, error) {
	if thingName == "" {
		return nil, validationErrorf("thing name is required")
	}
	return s.deviceRepo.Get(ctx, thingName)
}

// AssociateDevicesWithGroup executes one association task. It is invoked
// by the queue consumer and has no return value: every outcome lands in
// the store, and once execution begins no path leaves the task in
// InProgress.
func (s *AssociationService) AssociateDevicesWithGroup(ctx context.Context, task *models.DeviceTaskSummary) {
	if task == nil || task.TaskID == "" || task.GroupName == "" {
		logger.Error("Discarding association task with missing identifiers")
		return
	}
	log := logger.WithTask(task.TaskID, task.GroupName)

	if len(task.Devices) == 0 {
		s.failBeforeChain(ctx, task, "task has no devices")
		return
	}

	// Re-resolve the group; between creation and delivery it may have
	// been removed.
	group, err := s.groupRepo.Get(ctx, task.GroupName)
	if err != nil {
		s.failBeforeChain(ctx, task, fmt.Sprintf("group %s not resolvable: %v", task.GroupName, err))
		return
	}
	group.TaskStatus = models.StatusInProgress
	group.StatusMessage = ""

	req := &AssociationRequest{Task: task, Group: group}

	if err := s.resolveGreengrassMetadata(ctx, req); err != nil {
		req.Fail(err.Error())
		s.saveGroup(ctx, req)
		return
	}

	task.Status = models.StatusInProgress
	for i := range task.Devices {
		task.Devices[i].Status = models.StatusInProgress
	}

	// Run the chain. Any error not already recorded as a handled failure
	// is forced onto the group here (first failure wins), so the terminal
	// persistence step below always has a definite outcome to write.
	if err := s.runSteps(ctx, req); err != nil {
		log.WithField("error", err.Error()).Error("Association chain failed")
		req.Fail(err.Error())
	}

	s.saveGroup(ctx, req)
}

// resolveGreengrassMetadata fetches the control-plane state the chain
// needs: the group, its latest version, and then - concurrently, since
// they are independent read-only lookups - the core definition version,
// the device definition version and the configuration template.
func (s *AssociationService) resolveGreengrassMetadata(ctx context.Context, req *AssociationRequest) error {
	ggGroup, err := s.controlPlane.GetGroupInfo(ctx, req.Group.ID)
	if err != nil {
		return fmt.Errorf("group %s: %w", req.Group.ID, err)
	}
	req.GGGroup = ggGroup

	ggVersion, err := s.controlPlane.GetGroupVersionInfo(ctx, ggGroup.ID, ggGroup.LatestVersion)
	if err != nil {
		return fmt.Errorf("group version %s: %w", ggGroup.LatestVersion, err)
	}
	req.GGGroupVersion = ggVersion

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		core, err := s.controlPlane.GetCoreInfo(gctx, ggVersion.CoreDefinitionVersionArn)
		if err != nil {
			return fmt.Errorf("core definition version: %w", err)
		}
		req.GGCoreVersion = core
		return nil
	})
	g.Go(func() error {
		devices, err := s.controlPlane.GetDeviceInfo(gctx, ggVersion.DeviceDefinitionVersionArn)
		if err != nil {
			return fmt.Errorf("device definition version: %w", err)
		}
		req.GGDeviceVersion = devices
		return nil
	})
	g.Go(func() error {
		template, err := s.templateRepo.Get(gctx, req.Group.TemplateName, req.Group.TemplateVersionNo)
		if err != nil {
			return fmt.Errorf("template %s v%d: %w", req.Group.TemplateName, req.Group.TemplateVersionNo, err)
		}
		req.Template = template
		return nil
	})
	return g.Wait()
}

// failBeforeChain persists a task that failed before the chain could
// start, so a consumed message never leaves a Waiting record behind.
func (s *AssociationService) failBeforeChain(ctx context.Context, task *models.DeviceTaskSummary, message string) {
	logger.WithTask(task.TaskID, task.GroupName).WithField("reason", message).Error("Association task failed before chain start")

	task.Status = models.StatusFailure
	task.UpdatedAt = time.Now().UTC()
	for i := range task.Devices {
		task.Devices[i].Fail(message)
	}
	if err := s.taskRepo.Save(ctx, task); err != nil {
		logger.WithTask(task.TaskID, task.GroupName).WithField("error", err.Error()).Error("Failed to persist failed task")
	}
}

// isNotFound reports whether err is a not-found from any collaborator
func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, greengrass.ErrNotFound)
}
