package greengrass

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/greengrass"
	"github.com/aws/aws-sdk-go-v2/service/greengrass/types"
	"github.com/imyashkale/deviceserver/internal/logger"
)

// GroupInfo holds the control-plane view of a Greengrass group.
type GroupInfo struct {
	ID               string
	Name             string
	Arn              string
	LatestVersion    string
	LatestVersionArn string
}

// GroupVersionInfo holds the definition version ARNs referenced by one
// immutable group version.
type GroupVersionInfo struct {
	CoreDefinitionVersionArn         string
	DeviceDefinitionVersionArn       string
	FunctionDefinitionVersionArn     string
	LoggerDefinitionVersionArn       string
	ResourceDefinitionVersionArn     string
	SubscriptionDefinitionVersionArn string
}

// CoreInfo describes one core within a core definition version.
type CoreInfo struct {
	ID             string
	ThingArn       string
	CertificateArn string
	SyncShadow     bool
}

// CoreDefinitionInfo is the content of a core definition version.
type CoreDefinitionInfo struct {
	Cores []CoreInfo
}

// DeviceInfo describes one device within a device definition version.
type DeviceInfo struct {
	ID             string
	ThingArn       string
	CertificateArn string
	SyncShadow     bool
}

// DeviceDefinitionInfo is the content of a device definition version.
type DeviceDefinitionInfo struct {
	Devices []DeviceInfo
}

// GroupVersionClient is a thin client over the Greengrass control plane
// for group, version, core and device definition lookups, plus
// publication of new group versions.
type GroupVersionClient struct {
	gg *greengrass.Client
}

// NewGroupVersionClient creates a new Greengrass control-plane client
func NewGroupVersionClient(cfg aws.Config) *GroupVersionClient {
	return &GroupVersionClient{
		gg: greengrass.NewFromConfig(cfg),
	}
}

// GetGroupInfo retrieves group metadata by group ID
func (c *GroupVersionClient) GetGroupInfo(ctx context.Context, id string) (*GroupInfo, error) {
	out, err := c.gg.GetGroup(ctx, &greengrass.GetGroupInput{
		GroupId: aws.String(id),
	})
	if err != nil {
		return nil, mapError("GetGroup", err)
	}

	return &GroupInfo{
		ID:               aws.ToString(out.Id),
		Name:             aws.ToString(out.Name),
		Arn:              aws.ToString(out.Arn),
		LatestVersion:    aws.ToString(out.LatestVersion),
		LatestVersionArn: aws.ToString(out.LatestVersionArn),
	}, nil
}

// GetGroupVersionInfo retrieves the definition ARNs of one group version
func (c *GroupVersionClient) GetGroupVersionInfo(ctx context.Context, groupID, versionID string) (*GroupVersionInfo, error) {
	out, err := c.gg.GetGroupVersion(ctx, &greengrass.GetGroupVersionInput{
		GroupId:        aws.String(groupID),
		GroupVersionId: aws.String(versionID),
	})
	if err != nil {
		return nil, mapError("GetGroupVersion", err)
	}

	if out.Definition == nil {
		return nil, upstream("GetGroupVersion", fmt.Errorf("group version %s/%s has no definition", groupID, versionID))
	}

	return &GroupVersionInfo{
		CoreDefinitionVersionArn:         aws.ToString(out.Definition.CoreDefinitionVersionArn),
		DeviceDefinitionVersionArn:       aws.ToString(out.Definition.DeviceDefinitionVersionArn),
		FunctionDefinitionVersionArn:     aws.ToString(out.Definition.FunctionDefinitionVersionArn),
		LoggerDefinitionVersionArn:       aws.ToString(out.Definition.LoggerDefinitionVersionArn),
		ResourceDefinitionVersionArn:     aws.ToString(out.Definition.ResourceDefinitionVersionArn),
		SubscriptionDefinitionVersionArn: aws.ToString(out.Definition.SubscriptionDefinitionVersionArn),
	}, nil
}

// GetCoreInfo retrieves the cores of a core definition version by its ARN
func (c *GroupVersionClient) GetCoreInfo(ctx context.Context, arn string) (*CoreDefinitionInfo, error) {
	defID, versionID, err := parseDefinitionVersionArn(arn)
	if err != nil {
		return nil, err
	}

	out, err := c.gg.GetCoreDefinitionVersion(ctx, &greengrass.GetCoreDefinitionVersionInput{
		CoreDefinitionId:        aws.String(defID),
		CoreDefinitionVersionId: aws.String(versionID),
	})
	if err != nil {
		return nil, mapError("GetCoreDefinitionVersion", err)
	}

	info := &CoreDefinitionInfo{}
	if out.Definition != nil {
		for _, core := range out.Definition.Cores {
			info.Cores = append(info.Cores, CoreInfo{
				ID:             aws.ToString(core.Id),
				ThingArn:       aws.ToString(core.ThingArn),
				CertificateArn: aws.ToString(core.CertificateArn),
				SyncShadow:     aws.ToBool(core.SyncShadow),
			})
		}
	}
	return info, nil
}

// GetDeviceInfo retrieves the devices of a device definition version by its ARN
func (c *GroupVersionClient) GetDeviceInfo(ctx context.Context, arn string) (*DeviceDefinitionInfo, error) {
	info := &DeviceDefinitionInfo{}

	// A group with no devices yet has no device definition version
	if arn == "" {
		return info, nil
	}

	defID, versionID, err := parseDefinitionVersionArn(arn)
	if err != nil {
		return nil, err
	}

	out, err := c.gg.GetDeviceDefinitionVersion(ctx, &greengrass.GetDeviceDefinitionVersionInput{
		DeviceDefinitionId:        aws.String(defID),
		DeviceDefinitionVersionId: aws.String(versionID),
	})
	if err != nil {
		return nil, mapError("GetDeviceDefinitionVersion", err)
	}

	if out.Definition != nil {
		for _, device := range out.Definition.Devices {
			info.Devices = append(info.Devices, DeviceInfo{
				ID:             aws.ToString(device.Id),
				ThingArn:       aws.ToString(device.ThingArn),
				CertificateArn: aws.ToString(device.CertificateArn),
				SyncShadow:     aws.ToBool(device.SyncShadow),
			})
		}
	}
	return info, nil
}

// CreateDeviceDefinitionVersion publishes a new device definition whose
// initial version contains the given devices, returning the version ARN.
func (c *GroupVersionClient) CreateDeviceDefinitionVersion(ctx context.Context, name string, devices []DeviceInfo) (string, error) {
	initial := &types.DeviceDefinitionVersion{}
	for _, d := range devices {
		initial.Devices = append(initial.Devices, types.Device{
			Id:             aws.String(d.ID),
			ThingArn:       aws.String(d.ThingArn),
			CertificateArn: aws.String(d.CertificateArn),
			SyncShadow:     aws.Bool(d.SyncShadow),
		})
	}

	out, err := c.gg.CreateDeviceDefinition(ctx, &greengrass.CreateDeviceDefinitionInput{
		Name:           aws.String(name),
		InitialVersion: initial,
	})
	if err != nil {
		return "", mapError("CreateDeviceDefinition", err)
	}

	logger.WithFields(map[string]interface{}{
		"definition_id": aws.ToString(out.Id),
		"devices":       len(devices),
	}).Info("Created device definition version")

	return aws.ToString(out.LatestVersionArn), nil
}

// CreateGroupVersion publishes a new immutable group version referencing
// the given definition version ARNs, returning the new version ID.
func (c *GroupVersionClient) CreateGroupVersion(ctx context.Context, groupID string, version *GroupVersionInfo) (string, error) {
	in := &greengrass.CreateGroupVersionInput{
		GroupId: aws.String(groupID),
	}
	// Empty ARNs must be omitted, not sent as empty strings
	if version.CoreDefinitionVersionArn != "" {
		in.CoreDefinitionVersionArn = aws.String(version.CoreDefinitionVersionArn)
	}
	if version.DeviceDefinitionVersionArn != "" {
		in.DeviceDefinitionVersionArn = aws.String(version.DeviceDefinitionVersionArn)
	}
	if version.FunctionDefinitionVersionArn != "" {
		in.FunctionDefinitionVersionArn = aws.String(version.FunctionDefinitionVersionArn)
	}
	if version.LoggerDefinitionVersionArn != "" {
		in.LoggerDefinitionVersionArn = aws.String(version.LoggerDefinitionVersionArn)
	}
	if version.ResourceDefinitionVersionArn != "" {
		in.ResourceDefinitionVersionArn = aws.String(version.ResourceDefinitionVersionArn)
	}
	if version.SubscriptionDefinitionVersionArn != "" {
		in.SubscriptionDefinitionVersionArn = aws.String(version.SubscriptionDefinitionVersionArn)
	}

	out, err := c.gg.CreateGroupVersion(ctx, in)
	if err != nil {
		return "", mapError("CreateGroupVersion", err)
	}

	logger.WithFields(map[string]interface{}{
		"group_id":   groupID,
		"version_id": aws.ToString(out.Version),
	}).Info("Created group version")

	return aws.ToString(out.Version), nil
}

// parseDefinitionVersionArn extracts the definition ID and version ID
// from a definition version ARN of the form
// arn:aws:greengrass:<region>:<account>:/greengrass/definition/<kind>/<id>/versions/<version-id>
func parseDefinitionVersionArn(arn string) (string, string, error) {
	parts := strings.Split(arn, "/")
	if len(parts) < 6 || parts[len(parts)-2] != "versions" {
		return "", "", upstream("ParseArn", fmt.Errorf("unexpected definition version arn: %s", arn))
	}
	return parts[len(parts)-3], parts[len(parts)-1], nil
}

// mapError converts SDK errors into the package taxonomy
func mapError(op string, err error) error {
	var idNotFound *types.IdNotFoundException
	if errors.As(err, &idNotFound) {
		return ErrNotFound
	}
	return upstream(op, err)
}
