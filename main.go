// Package main is the entry point for the cloud-provision CLI.
//
// The CLI provisions transfer-scoped cloud storage resources: it creates
// buckets, scoped identities and short-lived access tokens, tracks the
// provisioned resources in a state file and tears the identities down again
// on deprovision.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/anirudhbiyani/cloud-provision/pkg/aws"
	"github.com/anirudhbiyani/cloud-provision/pkg/config"
	"github.com/anirudhbiyani/cloud-provision/pkg/gcp"
	"github.com/anirudhbiyani/cloud-provision/pkg/provision"
	"github.com/anirudhbiyani/cloud-provision/pkg/vault"
)

const (
	exitError           = 1
	exitValidationError = 2
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	// Setup context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "provision":
		return cmdProvision(ctx, cmdArgs)
	case "deprovision":
		return cmdDeprovision(ctx, cmdArgs)
	case "list":
		return cmdList(ctx, cmdArgs)
	case "version":
		return cmdVersion()
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nRun 'cloud-provision help' for usage", cmd)
	}
}

func printUsage() {
	fmt.Println(`cloud-provision - Transfer-scoped cloud storage provisioning

Usage:
  cloud-provision <command> [options]

Commands:
  provision     Provision a storage resource from a definition file
  deprovision   Tear down the identity of a provisioned resource
  list          List all provisioned resources
  version       Show version information
  help          Show this help message

Provision Options:
  -f, --file <path>       Resource definition file (JSON)

Deprovision Options:
  --id <id>               Provisioned resource ID

Common Options:
  --state <path>          State file path (default: in-memory)
  --vault <dir>           Secret store directory
  -v, --verbose           Verbose output

Definition file format:
  {
    "type": "GoogleCloudStorage",
    "definition": {
      "id": "r1",
      "transferProcessId": "tp-123",
      "location": "EU",
      "projectId": "my-project",
      "storageClass": "STANDARD",
      "dataAddress": {
        "type": "GoogleCloudStorage",
        "keyName": "gcs-token",
        "properties": {"bucket_name": "b1"}
      }
    }
  }

  {
    "type": "AmazonS3",
    "definition": {
      "id": "r2",
      "transferProcessId": "tp-456",
      "regionId": "eu-central-1",
      "dataAddress": {"type": "AmazonS3"}
    }
  }

Examples:
  # Provision a bucket and scoped identity
  cloud-provision provision -f gcs-bucket.json --state ~/.cloud-provision/state.json

  # Resolve credentials from a directory-backed secret store
  cloud-provision provision -f gcs-bucket.json --vault /etc/secrets

  # Tear down the identity again (the bucket is kept)
  cloud-provision deprovision --id r1 --state ~/.cloud-provision/state.json

  # List tracked resources
  cloud-provision list --state ~/.cloud-provision/state.json

Environment:
  GCP_PROJECT_ID          Default project for bucket and identity operations
  AWS_REGION              Default region for S3 provisioning
  PROVISION_STATE_FILE    Default state file path
  PROVISION_VAULT_DIR     Default secret store directory
  PROVISION_MAX_WORKERS   Concurrent provision operations (default: 8)
  LOG_LEVEL               debug|info|warn|error (default: info)`)
}

// commonOpts are shared by all commands.
type commonOpts struct {
	statePath string
	vaultDir  string
	verbose   bool
}

// parseCommon consumes shared flags and returns the remaining arguments.
func parseCommon(cfg *config.Config, args []string) (*commonOpts, []string, error) {
	opts := &commonOpts{
		statePath: cfg.StateFile,
		vaultDir:  cfg.VaultDir,
	}
	rest := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--state":
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("--state requires a path argument")
			}
			opts.statePath = args[i+1]
			i++
		case "--vault":
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("--vault requires a directory argument")
			}
			opts.vaultDir = args[i+1]
			i++
		case "-v", "--verbose":
			opts.verbose = true
		default:
			rest = append(rest, args[i])
		}
	}
	return opts, rest, nil
}

// definitionFile is the on-disk resource definition envelope.
type definitionFile struct {
	Type       string          `json:"type"`
	Definition json.RawMessage `json:"definition"`
}

func cmdProvision(ctx context.Context, args []string) error {
	cfg := config.Load()
	opts, rest, err := parseCommon(cfg, args)
	if err != nil {
		return err
	}

	var defPath string
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "-f", "--file":
			if i+1 >= len(rest) {
				return fmt.Errorf("--file requires a path argument")
			}
			defPath = rest[i+1]
			i++
		default:
			return fmt.Errorf("unknown option: %s", rest[i])
		}
	}
	if defPath == "" {
		return fmt.Errorf("provision requires a definition file (-f <path>)")
	}

	definition, err := loadDefinition(defPath)
	if err != nil {
		return err
	}

	manager, secrets, logger, err := buildManager(cfg, opts)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	outcome := <-manager.Provision(ctx, definition)
	if outcome.Err != nil {
		return outcome.Err
	}
	if !outcome.Result.Succeeded() {
		fmt.Fprintf(os.Stderr, "Provision failed: %s\n", outcome.Result.FailureDetail())
		os.Exit(exitValidationError)
	}

	if err := storeSecretToken(ctx, secrets, outcome.Result.Content); err != nil {
		return fmt.Errorf("provisioned, but storing the secret token failed: %w", err)
	}

	return printJSON(outcome.Result.Content)
}

// storeSecretToken hands the new resource's access token to the secret store,
// keyed by resource id. Resource records never carry the token themselves.
func storeSecretToken(ctx context.Context, secrets provision.SecretStore, response *provision.ProvisionResponse) error {
	writer, ok := secrets.(provision.SecretWriter)
	if !ok || response.SecretToken == nil {
		return nil
	}

	data, err := json.Marshal(response.SecretToken)
	if err != nil {
		return fmt.Errorf("failed to serialize secret token: %w", err)
	}
	return writer.StoreSecret(ctx, response.Resource.GetID(), string(data))
}

func cmdDeprovision(ctx context.Context, args []string) error {
	cfg := config.Load()
	opts, rest, err := parseCommon(cfg, args)
	if err != nil {
		return err
	}

	var id string
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--id":
			if i+1 >= len(rest) {
				return fmt.Errorf("--id requires an argument")
			}
			id = rest[i+1]
			i++
		default:
			return fmt.Errorf("unknown option: %s", rest[i])
		}
	}
	if id == "" {
		return fmt.Errorf("deprovision requires a resource id (--id <id>)")
	}

	manager, _, logger, err := buildManager(cfg, opts)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	outcome := <-manager.DeprovisionStored(ctx, id)
	if outcome.Err != nil {
		return outcome.Err
	}
	if !outcome.Result.Succeeded() {
		fmt.Fprintf(os.Stderr, "Deprovision failed: %s\n", outcome.Result.FailureDetail())
		os.Exit(exitValidationError)
	}

	return printJSON(outcome.Result.Content)
}

func cmdList(ctx context.Context, args []string) error {
	cfg := config.Load()
	opts, rest, err := parseCommon(cfg, args)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("unknown option: %s", rest[0])
	}

	manager, _, logger, err := buildManager(cfg, opts)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	records, err := manager.List(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No provisioned resources.")
		return nil
	}
	return printJSON(records)
}

func cmdVersion() error {
	fmt.Printf("cloud-provision %s\n", version)
	return nil
}

// loadDefinition reads and decodes a resource definition file.
func loadDefinition(path string) (provision.ResourceDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file: %w", err)
	}

	var envelope definitionFile
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse definition file: %w", err)
	}

	switch envelope.Type {
	case gcp.StoreType:
		var def gcp.GcsResourceDefinition
		if err := json.Unmarshal(envelope.Definition, &def); err != nil {
			return nil, fmt.Errorf("invalid %s definition: %w", envelope.Type, err)
		}
		if def.ProjectID == "" {
			def.ProjectID = config.Load().ProjectID
		}
		return &def, validateDefinition(&def)
	case aws.StoreType:
		var def aws.S3BucketResourceDefinition
		if err := json.Unmarshal(envelope.Definition, &def); err != nil {
			return nil, fmt.Errorf("invalid %s definition: %w", envelope.Type, err)
		}
		return &def, validateDefinition(&def)
	default:
		return nil, fmt.Errorf("unknown resource type: %q", envelope.Type)
	}
}

func validateDefinition(def provision.ResourceDefinition) error {
	if def.GetID() == "" {
		return fmt.Errorf("definition is missing an id")
	}
	if def.GetTransferProcessID() == "" {
		return fmt.Errorf("definition is missing a transferProcessId")
	}
	return nil
}

// buildManager wires the secret store, provisioners and resource store into
// a ready-to-use manager.
func buildManager(cfg *config.Config, opts *commonOpts) (*provision.Manager, provision.SecretStore, *zap.Logger, error) {
	logger, err := buildLogger(cfg.LogLevel, opts.verbose)
	if err != nil {
		return nil, nil, nil, err
	}

	var secrets provision.SecretStore
	if opts.vaultDir != "" {
		secrets = vault.NewDir(opts.vaultDir)
	} else {
		secrets = vault.NewMemory()
	}

	registry := provision.NewRegistry()
	registry.Register(gcp.NewProvisioner(
		gcp.NewCredentialResolver(secrets, logger),
		gcp.WithLogger(logger),
	))
	registry.Register(aws.NewProvisioner(aws.WithLogger(logger)))

	var store provision.ResourceStore
	if opts.statePath != "" {
		store, err = provision.NewFileResourceStore(opts.statePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open state file: %w", err)
		}
	} else {
		store = provision.NewMemoryResourceStore()
	}

	manager := provision.NewManager(
		provision.WithRegistry(registry),
		provision.WithStore(store),
		provision.WithLogger(logger),
		provision.WithMaxConcurrent(cfg.MaxWorkers),
	)
	return manager, secrets, logger, nil
}

func buildLogger(level string, verbose bool) (*zap.Logger, error) {
	if verbose {
		level = "debug"
	}

	zapCfg := zap.NewProductionConfig()
	parsed, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	zapCfg.Level = parsed
	// Logs go to stderr so command output stays parseable.
	zapCfg.OutputPaths = []string{"stderr"}
	return zapCfg.Build()
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
