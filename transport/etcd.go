package transport

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdInterfaceDirectory backs FindInterfaces/SelectInterface with a
// shared etcd registry. Grounded on the teacher's etcd_registry.go
// Register/Deregister/Discover/Watch pattern, repurposed here to publish
// and discover OBEX transport endpoints instead of RPC service instances.
type EtcdInterfaceDirectory struct {
	client *clientv3.Client
	prefix string
}

// NewEtcdInterfaceDirectory opens an etcd client against endpoints,
// publishing and listing interfaces under the given key prefix (e.g.
// "/obex/interfaces/").
func NewEtcdInterfaceDirectory(endpoints []string, prefix string) (*EtcdInterfaceDirectory, error) {
	cli, err := clientv3.New(clientv3.Config{Endpoints: endpoints, DialTimeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("transport: etcd dial: %w", err)
	}
	return &EtcdInterfaceDirectory{client: cli, prefix: prefix}, nil
}

// Close releases the underlying etcd client.
func (d *EtcdInterfaceDirectory) Close() error { return d.client.Close() }

// Publish registers iface under the directory's prefix so peers running
// FindInterfaces can discover it.
func (d *EtcdInterfaceDirectory) Publish(ctx context.Context, iface Interface) error {
	if _, err := d.client.Put(ctx, d.prefix+iface.Name, iface.Address); err != nil {
		return fmt.Errorf("transport: etcd publish %s: %w", iface.Name, err)
	}
	return nil
}

// Withdraw removes a previously published interface.
func (d *EtcdInterfaceDirectory) Withdraw(ctx context.Context, name string) error {
	_, err := d.client.Delete(ctx, d.prefix+name)
	if err != nil {
		return fmt.Errorf("transport: etcd withdraw %s: %w", name, err)
	}
	return nil
}

// FindInterfaces lists every interface currently published under the
// directory's prefix.
func (d *EtcdInterfaceDirectory) FindInterfaces(ctx context.Context) ([]Interface, error) {
	resp, err := d.client.Get(ctx, d.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("transport: etcd list: %w", err)
	}
	out := make([]Interface, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		out = append(out, Interface{
			Name:    string(kv.Key[len(d.prefix):]),
			Address: string(kv.Value),
		})
	}
	return out, nil
}

// Watch streams directory changes until ctx is canceled, delivering each
// added or removed interface to onChange.
func (d *EtcdInterfaceDirectory) Watch(ctx context.Context, onChange func(iface Interface, removed bool)) {
	wc := d.client.Watch(ctx, d.prefix, clientv3.WithPrefix())
	for resp := range wc {
		for _, ev := range resp.Events {
			iface := Interface{Name: string(ev.Kv.Key[len(d.prefix):]), Address: string(ev.Kv.Value)}
			onChange(iface, ev.Type == clientv3.EventTypeDelete)
		}
	}
}
