package greengrass

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iot"
	iottypes "github.com/aws/aws-sdk-go-v2/service/iot/types"
	"github.com/imyashkale/deviceserver/internal/logger"
)

// ThingInfo holds the registry identity of an IoT thing.
type ThingInfo struct {
	ThingName string
	ThingID   string
	ThingArn  string
}

// ThingClient is a thin client over the IoT registry for thing and
// principal resolution during device association.
type ThingClient struct {
	iot *iot.Client
}

// NewThingClient creates a new IoT registry client
func NewThingClient(cfg aws.Config) *ThingClient {
	return &ThingClient{
		iot: iot.NewFromConfig(cfg),
	}
}

// GetThing resolves a thing by name. Returns ErrNotFound for things
// that have not been registered yet.
func (c *ThingClient) GetThing(ctx context.Context, thingName string) (*ThingInfo, error) {
	out, err := c.iot.DescribeThing(ctx, &iot.DescribeThingInput{
		ThingName: aws.String(thingName),
	})
	if err != nil {
		var notFound *iottypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, ErrNotFound
		}
		return nil, upstream("DescribeThing", err)
	}

	return &ThingInfo{
		ThingName: aws.ToString(out.ThingName),
		ThingID:   aws.ToString(out.ThingId),
		ThingArn:  aws.ToString(out.ThingArn),
	}, nil
}

// ProvisionThing registers a new thing, recording the provisioning
// template it was created from as a thing attribute.
func (c *ThingClient) ProvisionThing(ctx context.Context, thingName, templateName string) (*ThingInfo, error) {
	out, err := c.iot.CreateThing(ctx, &iot.CreateThingInput{
		ThingName: aws.String(thingName),
		AttributePayload: &iottypes.AttributePayload{
			Attributes: map[string]string{
				"provisioningTemplate": templateName,
			},
		},
	})
	if err != nil {
		return nil, upstream("CreateThing", err)
	}

	logger.WithFields(map[string]interface{}{
		"thing_name": thingName,
		"template":   templateName,
	}).Info("Provisioned thing")

	return &ThingInfo{
		ThingName: aws.ToString(out.ThingName),
		ThingID:   aws.ToString(out.ThingId),
		ThingArn:  aws.ToString(out.ThingArn),
	}, nil
}

// GetPrincipals lists the principal ARNs attached to a thing
func (c *ThingClient) GetPrincipals(ctx context.Context, thingName string) ([]string, error) {
	out, err := c.iot.ListThingPrincipals(ctx, &iot.ListThingPrincipalsInput{
		ThingName: aws.String(thingName),
	})
	if err != nil {
		var notFound *iottypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, ErrNotFound
		}
		return nil, upstream("ListThingPrincipals", err)
	}
	return out.Principals, nil
}

// CreatePrincipal creates an active certificate and attaches it to the
// thing, returning the certificate ARN.
func (c *ThingClient) CreatePrincipal(ctx context.Context, thingName string) (string, error) {
	cert, err := c.iot.CreateKeysAndCertificate(ctx, &iot.CreateKeysAndCertificateInput{
		SetAsActive: true,
	})
	if err != nil {
		return "", upstream("CreateKeysAndCertificate", err)
	}

	certArn := aws.ToString(cert.CertificateArn)
	if certArn == "" {
		return "", upstream("CreateKeysAndCertificate", fmt.Errorf("no certificate ARN returned"))
	}

	_, err = c.iot.AttachThingPrincipal(ctx, &iot.AttachThingPrincipalInput{
		ThingName: aws.String(thingName),
		Principal: aws.String(certArn),
	})
	if err != nil {
		return "", upstream("AttachThingPrincipal", err)
	}

	logger.WithFields(map[string]interface{}{
		"thing_name":      thingName,
		"certificate_arn": certArn,
	}).Info("Created and attached certificate")

	return certArn, nil
}
