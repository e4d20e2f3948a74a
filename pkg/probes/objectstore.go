package probes

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/gophercloud/openstack/objectstorage/v1/containers"
	"github.com/gophercloud/gophercloud/openstack/objectstorage/v1/objects"

	"github.com/osops/oschecks/pkg/config"
	"github.com/osops/oschecks/pkg/types/check"
)

const objectStorePayload = "oscheck object-store roundtrip"

// NewObjectStoreProbe writes, reads back, and deletes a uniquely named test
// object. The object name is randomized so concurrent check invocations
// against the same container never collide.
func NewObjectStoreProbe(cfg config.Config, container string) (check.Probe, error) {
	if container == "" {
		return nil, fmt.Errorf("object-store check requires a container name")
	}
	return func(ctx context.Context) (check.Outcome, error) {
		provider, err := authenticate(ctx, cfg)
		if err != nil {
			if o, ok := asServiceFailure(err); ok {
				return o, nil
			}
			return check.Outcome{}, err
		}
		client, err := openstack.NewObjectStorageV1(provider, endpointOpts(cfg))
		if err != nil {
			return check.Outcome{}, fmt.Errorf("locating object storage endpoint: %w", err)
		}

		name := "oscheck-" + uuid.NewString()

		if _, err := containers.Create(client, container, nil).Extract(); err != nil {
			if o, ok := asServiceFailure(err); ok {
				return o, nil
			}
			return check.Outcome{}, fmt.Errorf("ensuring container %q: %w", container, err)
		}
		createOpts := objects.CreateOpts{Content: strings.NewReader(objectStorePayload)}
		if _, err := objects.Create(client, container, name, createOpts).Extract(); err != nil {
			if o, ok := asServiceFailure(err); ok {
				return o, nil
			}
			return check.Outcome{}, fmt.Errorf("writing test object: %w", err)
		}
		// Best effort: the object must not outlive the check even when the
		// read back fails.
		defer objects.Delete(client, container, name, nil)

		dl := objects.Download(client, container, name, nil)
		content, err := dl.ExtractContent()
		if err != nil {
			if o, ok := asServiceFailure(err); ok {
				return o, nil
			}
			return check.Outcome{}, fmt.Errorf("reading test object back: %w", err)
		}
		if !bytes.Equal(content, []byte(objectStorePayload)) {
			return check.Failed("read back %d bytes, expected %d", len(content), len(objectStorePayload)), nil
		}
		return check.OK("object roundtrip through %q succeeded", container), nil
	}, nil
}
