package config

// ProjectDir holds project-local configuration and state.
const ProjectDir = ".flowrun"

// DefaultConfigPath is where `flowrun init` writes the configuration.
const DefaultConfigPath = ProjectDir + "/config.yaml"

// DefaultConfigYAML contains the default configuration YAML content written
// by `flowrun init`.
const DefaultConfigYAML = `# flowrun configuration
#
# Values not specified here use built-in defaults.
# Every key can be overridden with FLOWRUN_<SECTION>_<KEY>, e.g. FLOWRUN_ENGINE_MAX_PARALLEL.

log:
  level: info      # debug | info | warn | error
  format: auto     # auto | text | json

server:
  host: 127.0.0.1
  port: 8080
  cors: false
  allowed_origins: []

state:
  # SQLite database holding workflows, executions and step logs
  path: .flowrun/flowrun.db

engine:
  # Nodes run concurrently up to this limit; 1 runs strictly in plan order
  max_parallel: 4
  node_timeout: 5m
  # Empty disables the per-run limit
  run_timeout: ""

http:
  timeout: 30s
  user_agent: flowrun
  max_body_bytes: 1048576

workflows:
  # YAML/JSON workflow files imported on serve
  dir: .flowrun/workflows
  watch: false

# Integration credentials, referenced by a node's config.integrationId.
# Prefer environment variables: FLOWRUN_CRED_<REF>_<KEY>.
credentials: {}
`
