package config

// Config is the top-level declarative document: one file can define several
// workflows that share handler and storage wiring at build time.
type Config struct {
	Name      string     `yaml:"Name,omitempty" json:"Name,omitempty"`
	Workflows []Workflow `yaml:"Workflows" json:"Workflows"`
}

// Workflow declares one workflow: its trigger contract, named events, and an
// ordered step list. Step order matters: a step without explicit placement
// chains after the previous one.
type Workflow struct {
	Name          string           `yaml:"Name" json:"Name"`
	Description   string           `yaml:"Description,omitempty" json:"Description,omitempty"`
	TriggerSchema *Schema          `yaml:"TriggerSchema,omitempty" json:"TriggerSchema,omitempty"`
	Events        map[string]Event `yaml:"Events,omitempty" json:"Events,omitempty"`
	Steps         []Step           `yaml:"Steps" json:"Steps"`
}

// Event declares a named external event a workflow can wait on.
type Event struct {
	Schema *Schema `yaml:"Schema,omitempty" json:"Schema,omitempty"`
}

// Schema is the declarative form of a JSON-schema-like contract.
type Schema struct {
	Type       string               `yaml:"Type,omitempty" json:"Type,omitempty"`
	Properties map[string]*Property `yaml:"Properties,omitempty" json:"Properties,omitempty"`
	Required   []string             `yaml:"Required,omitempty" json:"Required,omitempty"`
}

type Property struct {
	Type        string   `yaml:"Type,omitempty" json:"Type,omitempty"`
	Description string   `yaml:"Description,omitempty" json:"Description,omitempty"`
	Enum        []string `yaml:"Enum,omitempty" json:"Enum,omitempty"`
}

// Step declares one workflow step. Exactly one placement applies: AfterEvent
// makes it an event wait, After joins on the named steps, Loop repeats it,
// and otherwise it chains after the preceding step (the first step roots the
// graph).
type Step struct {
	ID          string `yaml:"ID" json:"ID"`
	Description string `yaml:"Description,omitempty" json:"Description,omitempty"`

	// Handler names a function in the registry passed to Build. A step
	// without a handler succeeds with an empty output.
	Handler string `yaml:"Handler,omitempty" json:"Handler,omitempty"`

	Payload      map[string]any `yaml:"Payload,omitempty" json:"Payload,omitempty"`
	InputSchema  *Schema        `yaml:"InputSchema,omitempty" json:"InputSchema,omitempty"`
	OutputSchema *Schema        `yaml:"OutputSchema,omitempty" json:"OutputSchema,omitempty"`
	Retry        *Retry         `yaml:"Retry,omitempty" json:"Retry,omitempty"`

	// When gates the step on upstream output or trigger data.
	When *Condition `yaml:"When,omitempty" json:"When,omitempty"`

	// Variables maps input fields to "stepId.path" or "trigger.path" refs.
	Variables map[string]string `yaml:"Variables,omitempty" json:"Variables,omitempty"`

	// Root places the step as an independent entry point instead of
	// chaining it after the previous step.
	Root bool `yaml:"Root,omitempty" json:"Root,omitempty"`

	After      []string `yaml:"After,omitempty" json:"After,omitempty"`
	AfterEvent string   `yaml:"AfterEvent,omitempty" json:"AfterEvent,omitempty"`
	Loop       *Loop    `yaml:"Loop,omitempty" json:"Loop,omitempty"`
}

// Retry mirrors workflow.RetryConfig with a human-friendly delay string
// such as "250ms" or "5s".
type Retry struct {
	Attempts int    `yaml:"Attempts" json:"Attempts"`
	Delay    string `yaml:"Delay,omitempty" json:"Delay,omitempty"`
}

// Condition is the declarative condition form: a ref plus query, or a
// combinator over child conditions.
type Condition struct {
	// Ref is "stepId.path" or "trigger.path".
	Ref   string         `yaml:"Ref,omitempty" json:"Ref,omitempty"`
	Query map[string]any `yaml:"Query,omitempty" json:"Query,omitempty"`

	And []*Condition `yaml:"And,omitempty" json:"And,omitempty"`
	Or  []*Condition `yaml:"Or,omitempty" json:"Or,omitempty"`
	Not *Condition   `yaml:"Not,omitempty" json:"Not,omitempty"`
}

// Loop repeats a step while (or until) its condition holds.
type Loop struct {
	// Type is "while" or "until".
	Type      string     `yaml:"Type" json:"Type"`
	Condition *Condition `yaml:"Condition" json:"Condition"`
}
