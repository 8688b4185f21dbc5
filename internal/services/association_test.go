package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/imyashkale/deviceserver/internal/greengrass"
	"github.com/imyashkale/deviceserver/internal/models"
	"github.com/imyashkale/deviceserver/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- fakes ----

type fakeTaskRepo struct {
	tasks   map[string]*models.DeviceTaskSummary
	saveErr error
	events  *[]string
}

func (f *fakeTaskRepo) Save(_ context.Context, task *models.DeviceTaskSummary) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.events != nil {
		*f.events = append(*f.events, "save:"+task.TaskID)
	}
	copied := *task
	copied.Devices = append([]models.DeviceItem(nil), task.Devices...)
	f.tasks[task.GroupName+"/"+task.TaskID] = &copied
	return nil
}

func (f *fakeTaskRepo) Get(_ context.Context, groupName, taskID string) (*models.DeviceTaskSummary, error) {
	task, ok := f.tasks[groupName+"/"+taskID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return task, nil
}

func (f *fakeTaskRepo) ListByGroup(_ context.Context, groupName string) ([]*models.DeviceTaskSummary, error) {
	var out []*models.DeviceTaskSummary
	for _, t := range f.tasks {
		if t.GroupName == groupName {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeDeviceRepo struct {
	records map[string]*models.DeviceItem
	saved   []models.DeviceItem
}

func (f *fakeDeviceRepo) Save(_ context.Context, device *models.DeviceItem) error {
	f.saved = append(f.saved, *device)
	copied := *device
	f.records[device.ThingName] = &copied
	return nil
}

func (f *fakeDeviceRepo) Get(_ context.Context, thingName string) (*models.DeviceItem, error) {
	rec, ok := f.records[thingName]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return rec, nil
}

type fakeGroupRepo struct {
	groups map[string]*models.GroupItem
	saved  []models.GroupItem
}

func (f *fakeGroupRepo) Get(_ context.Context, name string) (*models.GroupItem, error) {
	group, ok := f.groups[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *group
	return &copied, nil
}

func (f *fakeGroupRepo) Save(_ context.Context, group *models.GroupItem) error {
	f.saved = append(f.saved, *group)
	return nil
}

type fakeTemplateRepo struct {
	templates map[string]*models.TemplateItem
}

func (f *fakeTemplateRepo) Get(_ context.Context, name string, versionNo int) (*models.TemplateItem, error) {
	tpl, ok := f.templates[fmt.Sprintf("%s/%d", name, versionNo)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return tpl, nil
}

type fakePublisher struct {
	published []*models.DeviceTaskSummary
	err       error
	events    *[]string
}

func (f *fakePublisher) Publish(_ context.Context, task *models.DeviceTaskSummary) error {
	if f.err != nil {
		return f.err
	}
	if f.events != nil {
		*f.events = append(*f.events, "publish:"+task.TaskID)
	}
	f.published = append(f.published, task)
	return nil
}

type fakeControlPlane struct {
	groupInfo   *greengrass.GroupInfo
	versionInfo *greengrass.GroupVersionInfo
	coreDef     *greengrass.CoreDefinitionInfo
	deviceDef   *greengrass.DeviceDefinitionInfo

	groupErr         error
	createVersionErr error

	createdDefinitions [][]greengrass.DeviceInfo
	createdVersions    []string
}

func (f *fakeControlPlane) GetGroupInfo(_ context.Context, id string) (*greengrass.GroupInfo, error) {
	if f.groupErr != nil {
		return nil, f.groupErr
	}
	return f.groupInfo, nil
}

func (f *fakeControlPlane) GetGroupVersionInfo(_ context.Context, groupID, versionID string) (*greengrass.GroupVersionInfo, error) {
	return f.versionInfo, nil
}

func (f *fakeControlPlane) GetCoreInfo(_ context.Context, arn string) (*greengrass.CoreDefinitionInfo, error) {
	return f.coreDef, nil
}

func (f *fakeControlPlane) GetDeviceInfo(_ context.Context, arn string) (*greengrass.DeviceDefinitionInfo, error) {
	return f.deviceDef, nil
}

func (f *fakeControlPlane) CreateDeviceDefinitionVersion(_ context.Context, name string, devices []greengrass.DeviceInfo) (string, error) {
	f.createdDefinitions = append(f.createdDefinitions, devices)
	return "arn:aws:greengrass:us-east-1:123456789012:/greengrass/definition/devices/d-1/versions/v-1", nil
}

func (f *fakeControlPlane) CreateGroupVersion(_ context.Context, groupID string, version *greengrass.GroupVersionInfo) (string, error) {
	if f.createVersionErr != nil {
		return "", f.createVersionErr
	}
	f.createdVersions = append(f.createdVersions, groupID)
	return "gv-2", nil
}

type fakeThingRegistry struct {
	things      map[string]*greengrass.ThingInfo
	principals  map[string][]string
	provisioned []string
}

func (f *fakeThingRegistry) GetThing(_ context.Context, thingName string) (*greengrass.ThingInfo, error) {
	info, ok := f.things[thingName]
	if !ok {
		return nil, greengrass.ErrNotFound
	}
	return info, nil
}

func (f *fakeThingRegistry) ProvisionThing(_ context.Context, thingName, templateName string) (*greengrass.ThingInfo, error) {
	f.provisioned = append(f.provisioned, thingName)
	info := &greengrass.ThingInfo{
		ThingName: thingName,
		ThingID:   "id-" + thingName,
		ThingArn:  "arn:aws:iot:us-east-1:123456789012:thing/" + thingName,
	}
	f.things[thingName] = info
	return info, nil
}

func (f *fakeThingRegistry) GetPrincipals(_ context.Context, thingName string) ([]string, error) {
	return f.principals[thingName], nil
}

func (f *fakeThingRegistry) CreatePrincipal(_ context.Context, thingName string) (string, error) {
	arn := "arn:aws:iot:us-east-1:123456789012:cert/" + thingName
	f.principals[thingName] = []string{arn}
	return arn, nil
}

// ---- fixture ----

type fixture struct {
	service   *AssociationService
	tasks     *fakeTaskRepo
	devices   *fakeDeviceRepo
	groups    *fakeGroupRepo
	templates *fakeTemplateRepo
	publisher *fakePublisher
	plane     *fakeControlPlane
	registry  *fakeThingRegistry
	events    []string
}

func newFixture() *fixture {
	f := &fixture{}
	f.tasks = &fakeTaskRepo{tasks: map[string]*models.DeviceTaskSummary{}, events: &f.events}
	f.devices = &fakeDeviceRepo{records: map[string]*models.DeviceItem{}}
	f.groups = &fakeGroupRepo{groups: map[string]*models.GroupItem{
		"group-1": {
			ID:                "gg-1",
			Name:              "group-1",
			TemplateName:      "core-cfg",
			TemplateVersionNo: 1,
		},
	}}
	f.templates = &fakeTemplateRepo{templates: map[string]*models.TemplateItem{
		"core-cfg/1": {
			Name:      "core-cfg",
			VersionNo: 1,
			Document:  "syncShadow: true\nloggingLevel: INFO\n",
		},
	}}
	f.publisher = &fakePublisher{events: &f.events}
	f.plane = &fakeControlPlane{
		groupInfo: &greengrass.GroupInfo{ID: "gg-1", Name: "group-1", LatestVersion: "gv-1"},
		versionInfo: &greengrass.GroupVersionInfo{
			CoreDefinitionVersionArn: "arn:aws:greengrass:us-east-1:123456789012:/greengrass/definition/cores/c-1/versions/cv-1",
		},
		coreDef: &greengrass.CoreDefinitionInfo{
			Cores: []greengrass.CoreInfo{{ID: "core-1", ThingArn: "arn:core", SyncShadow: true}},
		},
		deviceDef: &greengrass.DeviceDefinitionInfo{},
	}
	f.registry = &fakeThingRegistry{
		things:     map[string]*greengrass.ThingInfo{},
		principals: map[string][]string{},
	}
	f.service = NewAssociationService(f.tasks, f.devices, f.groups, f.templates, f.publisher, f.plane, f.registry)
	return f
}

func newDevices(names ...string) []models.DeviceItem {
	devices := make([]models.DeviceItem, 0, len(names))
	for _, n := range names {
		devices = append(devices, models.DeviceItem{
			ThingName:            n,
			Type:                 "device",
			ProvisioningTemplate: "tmpl-a",
		})
	}
	return devices
}

// ---- creation path ----

func TestCreateTask_ReturnsWaitingSnapshot(t *testing.T) {
	f := newFixture()

	task, err := f.service.CreateDeviceAssociationTask(context.Background(), "group-1", newDevices("t1"))
	require.NoError(t, err)

	assert.NotEmpty(t, task.TaskID)
	assert.Equal(t, models.StatusWaiting, task.Status)
	require.Len(t, task.Devices, 1)
	assert.Equal(t, models.StatusWaiting, task.Devices[0].Status)

	// The snapshot must be readable before queue processing happens.
	got, err := f.service.GetDeviceAssociationTask(context.Background(), "group-1", task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, got.Status)
	assert.Equal(t, task.TaskID, got.TaskID)
}

func TestCreateTask_PersistsBeforePublish(t *testing.T) {
	f := newFixture()

	task, err := f.service.CreateDeviceAssociationTask(context.Background(), "group-1", newDevices("t1", "t2"))
	require.NoError(t, err)

	require.Len(t, f.events, 2)
	assert.Equal(t, "save:"+task.TaskID, f.events[0])
	assert.Equal(t, "publish:"+task.TaskID, f.events[1])
}

func TestCreateTask_NoPublishOnPersistenceFailure(t *testing.T) {
	f := newFixture()
	f.tasks.saveErr = errors.New("dynamo down")

	_, err := f.service.CreateDeviceAssociationTask(context.Background(), "group-1", newDevices("t1"))
	require.Error(t, err)
	assert.Empty(t, f.publisher.published)
}

func TestCreateTask_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		groupName string
		devices   []models.DeviceItem
	}{
		{name: "empty group name", groupName: "", devices: newDevices("t1")},
		{name: "no devices", groupName: "group-1", devices: nil},
		{name: "device missing thing name", groupName: "group-1", devices: []models.DeviceItem{{Type: "device", ProvisioningTemplate: "tmpl-a"}}},
		{name: "device missing type", groupName: "group-1", devices: []models.DeviceItem{{ThingName: "t1", ProvisioningTemplate: "tmpl-a"}}},
		{name: "device missing template", groupName: "group-1", devices: []models.DeviceItem{{ThingName: "t1", Type: "device"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()

			_, err := f.service.CreateDeviceAssociationTask(context.Background(), tt.groupName, tt.devices)

			var validation *ValidationError
			require.ErrorAs(t, err, &validation)

			// Validation failures must leave no side effects behind.
			assert.Empty(t, f.tasks.tasks)
			assert.Empty(t, f.publisher.published)
		})
	}
}

func TestCreateTask_UnknownGroup(t *testing.T) {
	f := newFixture()

	_, err := f.service.CreateDeviceAssociationTask(context.Background(), "no-such-group", newDevices("t1"))
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Empty(t, f.tasks.tasks)
}

func TestCreateTask_ControlPlaneUnreachable(t *testing.T) {
	f := newFixture()
	f.plane.groupErr = &greengrass.UpstreamError{Op: "GetGroup", Err: errors.New("timeout")}

	_, err := f.service.CreateDeviceAssociationTask(context.Background(), "group-1", newDevices("t1"))
	require.Error(t, err)

	var upstream *greengrass.UpstreamError
	assert.ErrorAs(t, err, &upstream)
	assert.Empty(t, f.tasks.tasks)
	assert.Empty(t, f.publisher.published)
}

// ---- execution path ----

func runTask(t *testing.T, f *fixture, devices ...string) *models.DeviceTaskSummary {
	t.Helper()
	task, err := f.service.CreateDeviceAssociationTask(context.Background(), "group-1", newDevices(devices...))
	require.NoError(t, err)

	f.service.AssociateDevicesWithGroup(context.Background(), task)

	persisted, err := f.tasks.Get(context.Background(), "group-1", task.TaskID)
	require.NoError(t, err)
	return persisted
}

func TestAssociate_AllSuccess(t *testing.T) {
	f := newFixture()

	persisted := runTask(t, f, "t1", "t2")

	assert.Equal(t, models.StatusSuccess, persisted.Status)
	for _, d := range persisted.Devices {
		assert.Equal(t, models.StatusSuccess, d.Status)
		assert.Equal(t, "group-1", d.GroupName)
		assert.NotEmpty(t, d.ThingArn)
		assert.NotEmpty(t, d.CertificateArn)
	}

	// Unregistered things were provisioned on the way.
	assert.ElementsMatch(t, []string{"t1", "t2"}, f.registry.provisioned)

	// A new group version was published and recorded on the group.
	require.Len(t, f.plane.createdVersions, 1)
	require.NotEmpty(t, f.groups.saved)
	final := f.groups.saved[len(f.groups.saved)-1]
	assert.Equal(t, models.StatusSuccess, final.TaskStatus)
	assert.Equal(t, "gv-2", final.VersionID)
}

func TestAssociate_NeverLeftInProgress(t *testing.T) {
	f := newFixture()
	f.plane.createVersionErr = &greengrass.UpstreamError{Op: "CreateGroupVersion", Err: errors.New("throttled")}

	persisted := runTask(t, f, "t1")

	assert.True(t, persisted.Status.IsTerminal(), "task status %s is not terminal", persisted.Status)
	assert.Equal(t, models.StatusFailure, persisted.Status)
	for _, d := range persisted.Devices {
		assert.True(t, d.Status.IsTerminal())
	}
}

func TestAssociate_ExistingAssociationFailsOnlyConflictingDevice(t *testing.T) {
	f := newFixture()
	f.devices.records["t1"] = &models.DeviceItem{
		ThingName: "t1",
		GroupName: "other-group",
		Status:    models.StatusSuccess,
	}

	persisted := runTask(t, f, "t1", "t2")

	// The conflicting device fails; its sibling proceeds to success.
	assert.Equal(t, models.StatusSuccess, persisted.Status)

	d1 := persisted.Device("t1")
	require.NotNil(t, d1)
	assert.Equal(t, models.StatusFailure, d1.Status)
	assert.Contains(t, d1.StatusMessage, "other-group")

	d2 := persisted.Device("t2")
	require.NotNil(t, d2)
	assert.Equal(t, models.StatusSuccess, d2.Status)

	// Only the non-conflicting sibling was provisioned and published.
	assert.NotContains(t, f.registry.provisioned, "t1")
	require.Len(t, f.plane.createdDefinitions, 1)
	require.Len(t, f.plane.createdDefinitions[0], 1)
}

func TestAssociate_AllDevicesConflictingFailsTask(t *testing.T) {
	f := newFixture()
	f.devices.records["t1"] = &models.DeviceItem{ThingName: "t1", GroupName: "other-group"}

	persisted := runTask(t, f, "t1")

	assert.Equal(t, models.StatusFailure, persisted.Status)
	require.NotEmpty(t, f.groups.saved)
	assert.Contains(t, f.groups.saved[len(f.groups.saved)-1].StatusMessage, "no devices eligible")
	assert.Empty(t, f.plane.createdVersions)
}

func TestAssociate_FirstFailureWins(t *testing.T) {
	f := newFixture()
	// Two cores invalidates the whole task at the core-config step; after
	// the halt no later step may overwrite the recorded message.
	f.plane.coreDef = &greengrass.CoreDefinitionInfo{
		Cores: []greengrass.CoreInfo{{ID: "core-1"}, {ID: "core-2"}},
	}
	f.plane.createVersionErr = errors.New("would also fail")

	persisted := runTask(t, f, "t1")

	assert.Equal(t, models.StatusFailure, persisted.Status)
	final := f.groups.saved[len(f.groups.saved)-1]
	assert.Contains(t, final.StatusMessage, "exactly one core")
	assert.NotContains(t, final.StatusMessage, "would also fail")

	// The chain halted before publishing anything.
	assert.Empty(t, f.plane.createdDefinitions)
}

func TestAssociate_InvalidTemplateDocumentFailsTask(t *testing.T) {
	f := newFixture()
	f.templates.templates["core-cfg/1"].Document = "{not yaml: ["

	persisted := runTask(t, f, "t1")

	assert.Equal(t, models.StatusFailure, persisted.Status)
	final := f.groups.saved[len(f.groups.saved)-1]
	assert.Contains(t, final.StatusMessage, "core config")
}

func TestAssociate_GroupVanishedPersistsFailure(t *testing.T) {
	f := newFixture()
	task, err := f.service.CreateDeviceAssociationTask(context.Background(), "group-1", newDevices("t1"))
	require.NoError(t, err)

	delete(f.groups.groups, "group-1")
	f.service.AssociateDevicesWithGroup(context.Background(), task)

	persisted, err := f.tasks.Get(context.Background(), "group-1", task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailure, persisted.Status)
}

func TestAssociate_ReusesExistingPrincipal(t *testing.T) {
	f := newFixture()
	f.registry.things["t1"] = &greengrass.ThingInfo{
		ThingName: "t1",
		ThingArn:  "arn:aws:iot:us-east-1:123456789012:thing/t1",
	}
	f.registry.principals["t1"] = []string{"arn:existing-cert"}

	persisted := runTask(t, f, "t1")

	require.Equal(t, models.StatusSuccess, persisted.Status)
	assert.Equal(t, "arn:existing-cert", persisted.Devices[0].CertificateArn)
	assert.Empty(t, f.registry.provisioned)
}

func TestGetDevice(t *testing.T) {
	f := newFixture()
	runTask(t, f, "t1")

	device, err := f.service.GetDevice(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "group-1", device.GroupName)
	assert.Equal(t, models.StatusSuccess, device.Status)

	_, err = f.service.GetDevice(context.Background(), "unknown")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
