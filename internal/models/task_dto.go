package models

import "time"

// NewDeviceRequest represents one device in a task creation request.
type NewDeviceRequest struct {
	ThingName            string `json:"thingName" binding:"required"`
	Type                 string `json:"type" binding:"required"`
	ProvisioningTemplate string `json:"provisioningTemplate" binding:"required"`
}

// CreateDeviceTaskRequest represents the request body for creating a new
// device-association task.
type CreateDeviceTaskRequest struct {
	Devices []NewDeviceRequest `json:"devices" binding:"required"`
}

// ToDomain converts the request devices to domain DeviceItems.
func (req *CreateDeviceTaskRequest) ToDomain() []DeviceItem {
	devices := make([]DeviceItem, 0, len(req.Devices))
	for _, d := range req.Devices {
		devices = append(devices, DeviceItem{
			ThingName:            d.ThingName,
			Type:                 d.Type,
			ProvisioningTemplate: d.ProvisioningTemplate,
		})
	}
	return devices
}

// DeviceResponse represents one device in a task response.
type DeviceResponse struct {
	ThingName            string     `json:"thingName"`
	Type                 string     `json:"type"`
	ProvisioningTemplate string     `json:"provisioningTemplate"`
	Status               TaskStatus `json:"status"`
	StatusMessage        string     `json:"statusMessage,omitempty"`
}

// DeviceTaskResponse represents the response structure for a task.
type DeviceTaskResponse struct {
	TaskID    string           `json:"taskId"`
	GroupName string           `json:"groupName"`
	Status    TaskStatus       `json:"status"`
	Devices   []DeviceResponse `json:"devices"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// ToResponse converts a domain DeviceTaskSummary to a DeviceTaskResponse DTO.
func (t *DeviceTaskSummary) ToResponse() DeviceTaskResponse {
	devices := make([]DeviceResponse, 0, len(t.Devices))
	for _, d := range t.Devices {
		devices = append(devices, DeviceResponse{
			ThingName:            d.ThingName,
			Type:                 d.Type,
			ProvisioningTemplate: d.ProvisioningTemplate,
			Status:               d.Status,
			StatusMessage:        d.StatusMessage,
		})
	}
	return DeviceTaskResponse{
		TaskID:    t.TaskID,
		GroupName: t.GroupName,
		Status:    t.Status,
		Devices:   devices,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}
