package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jittakal/logaggregator/internal/config/dto"
	"github.com/jittakal/logaggregator/internal/connpool"
	"github.com/jittakal/logaggregator/internal/storage"
	pkgstorage "github.com/jittakal/logaggregator/pkg/storage"
	pkgstore "github.com/jittakal/logaggregator/pkg/store"
)

// RemoteBackends carries the already-constructed cloud filesystem
// backends the factory selects between via a node's remote_backend
// option, keyed the same way as fs_type=hdfs, remote_backend={s3,azure,gcs}.
// Local disk needs no entry: it is the factory's default.
type RemoteBackends struct {
	S3 pkgstorage.Filesystem
	Azure pkgstorage.Filesystem
	GCS pkgstorage.Filesystem
}

// Deps are the process-wide collaborators the factory wires into every
// store that needs one, rather than each store constructing its own.
type Deps struct {
	Logger *slog.Logger
	Now func() time.Time
	Pool *connpool.Pool
	Resolver connpool.Resolver
	Remote RemoteBackends
	LocalRoot pkgstorage.Filesystem
}

// Build recursively constructs a pkgstore.Store tree from a StoreNode,
// mirroring how Scribe's store.h's storeCreate factory
// dispatches on a store's declared type. category is the node's own
// category label, defaulting to node.Category when set.
func Build(node dto.StoreNode, deps Deps) (pkgstore.Store, error) {
	category := node.Category

	switch node.Type {
	case "null":
		s := NewNullStore(category)
		return configureAndReturn(s, node.Options)

	case "file":
		fs, err := resolveFilesystem(node.Options, deps)
		if err != nil {
			return nil, err
		}
		s := NewFileStore(fs, deps.Logger, category, deps.Now)
		return configureAndReturn(s, node.Options)

	case "framed_file":
		fs, err := resolveFilesystem(node.Options, deps)
		if err != nil {
			return nil, err
		}
		s := NewFramedFileStore(fs, deps.Logger, deps.Now)
		return configureAndReturn(s, node.Options)

	case "network":
		if deps.Pool == nil {
			return nil, fmt.Errorf("store factory: network store requires a shared connpool.Pool")
		}
		s := NewNetworkStore(deps.Pool, deps.Resolver, category)
		return configureAndReturn(s, node.Options)

	case "buffer":
		if node.Primary == nil || node.Secondary == nil {
			return nil, fmt.Errorf("store factory: buffer store requires primary and secondary")
		}
		primary, err := Build(*node.Primary, deps)
		if err != nil {
			return nil, fmt.Errorf("store factory: buffer primary: %w", err)
		}
		secondaryStore, err := Build(*node.Secondary, deps)
		if err != nil {
			return nil, fmt.Errorf("store factory: buffer secondary: %w", err)
		}
		secondary, ok := secondaryStore.(readableStore)
		if !ok {
			return nil, fmt.Errorf("store factory: buffer secondary of type %q is not Readable", node.Secondary.Type)
		}
		s := NewBufferStore(primary, secondary, deps.Now)
		return configureAndReturn(s, node.Options)

	case "multi":
		if len(node.Children) == 0 {
			return nil, fmt.Errorf("store factory: multi store requires at least one child")
		}
		children, err := buildChildren(node.Children, deps)
		if err != nil {
			return nil, err
		}
		s := NewMultiStore(children)
		return configureAndReturn(s, node.Options)

	case "bucket":
		children, err := buildChildren(node.Children, deps)
		if err != nil {
			return nil, err
		}
		s := NewBucketStore(children)
		return configureAndReturn(s, node.Options)

	case "category":
		if node.Model == nil {
			return nil, fmt.Errorf("store factory: category store requires a model")
		}
		model, err := Build(*node.Model, deps)
		if err != nil {
			return nil, fmt.Errorf("store factory: category model: %w", err)
		}
		s := NewCategoryStore(model)
		return configureAndReturn(s, node.Options)

	case "multi_file":
		fs, err := resolveFilesystem(node.Options, deps)
		if err != nil {
			return nil, err
		}
		s := NewMultiFileStore(fs, deps.Logger, deps.Now)
		return configureAndReturn(s, node.Options)

	case "framed_multi_file":
		fs, err := resolveFilesystem(node.Options, deps)
		if err != nil {
			return nil, err
		}
		s := NewFramedMultiFileStore(fs, deps.Logger, deps.Now)
		return configureAndReturn(s, node.Options)

	default:
		return nil, fmt.Errorf("store factory: unrecognized store type %q", node.Type)
	}
}

func buildChildren(nodes []dto.StoreNode, deps Deps) ([]pkgstore.Store, error) {
	children := make([]pkgstore.Store, 0, len(nodes))
	for i := range nodes {
		child, err := Build(nodes[i], deps)
		if err != nil {
			return nil, fmt.Errorf("store factory: child %d: %w", i, err)
		}
		children = append(children, child)
	}
	return children, nil
}

func configureAndReturn(s pkgstore.Store, opts map[string]string) (pkgstore.Store, error) {
	if err := s.Configure(pkgstore.ConfigOptions(opts)); err != nil {
		return nil, err
	}
	return s, nil
}

// resolveFilesystem realizes fs_type/remote_backend into a concrete
// pkgstorage.Filesystem before construction; fileStoreBase.configure
// merely recognizes these two keys, split
// between "what backend" (factory) and "how to roll" (fileStoreBase).
func resolveFilesystem(opts map[string]string, deps Deps) (pkgstorage.Filesystem, error) {
	fsType := opts["fs_type"]
	if fsType == "" || fsType == "std" {
		if deps.LocalRoot != nil {
			return deps.LocalRoot, nil
		}
		return storage.NewLocalFilesystem(), nil
	}
	if fsType != "hdfs" {
		return nil, fmt.Errorf("store factory: unrecognized fs_type %q", fsType)
	}
	switch opts["remote_backend"] {
	case "s3":
		if deps.Remote.S3 == nil {
			return nil, fmt.Errorf("store factory: fs_type=hdfs remote_backend=s3 but no S3 filesystem configured")
		}
		return deps.Remote.S3, nil
	case "azure":
		if deps.Remote.Azure == nil {
			return nil, fmt.Errorf("store factory: fs_type=hdfs remote_backend=azure but no Azure filesystem configured")
		}
		return deps.Remote.Azure, nil
	case "gcs":
		if deps.Remote.GCS == nil {
			return nil, fmt.Errorf("store factory: fs_type=hdfs remote_backend=gcs but no GCS filesystem configured")
		}
		return deps.Remote.GCS, nil
	default:
		return nil, fmt.Errorf("store factory: fs_type=hdfs requires a recognized remote_backend (s3, azure, gcs), got %q", opts["remote_backend"])
	}
}
