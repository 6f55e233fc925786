package graph

// Graph is one compiled pipeline.
type Graph struct {
	Name        string   `json:"name,omitempty" yaml:"name,omitempty"`
	PartitionID int64    `json:"partition_id" yaml:"partition_id"`
	Stages      []*Stage `json:"stages" yaml:"stages"`
}

// Stage is an ordered partition of the pipeline's jobs.
type Stage struct {
	Name        string `json:"name" yaml:"name"`
	Position    int    `json:"position" yaml:"position"`
	PartitionID int64  `json:"partition_id" yaml:"partition_id"`
	Jobs        []*Job `json:"jobs" yaml:"jobs"`
}

// Job is one concrete job instance.
type Job struct {
	Name           string         `json:"name" yaml:"name"`
	Stage          string         `json:"stage" yaml:"stage"`
	StageIndex     int            `json:"stage_idx" yaml:"stage_idx"`
	SchedulingType string         `json:"scheduling_type" yaml:"scheduling_type"`
	When           string         `json:"when" yaml:"when"`
	StartIn        string         `json:"start_in,omitempty" yaml:"start_in,omitempty"`
	AllowFailure   bool           `json:"allow_failure" yaml:"allow_failure"`
	ExitCodes      []int          `json:"allow_failure_exit_codes,omitempty" yaml:"allow_failure_exit_codes,omitempty"`
	Needs          []Need         `json:"needs,omitempty" yaml:"needs,omitempty"`
	Dependencies   []string       `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Script         []string       `json:"script,omitempty" yaml:"script,omitempty"`
	BeforeScript   []string       `json:"before_script,omitempty" yaml:"before_script,omitempty"`
	AfterScript    []string       `json:"after_script,omitempty" yaml:"after_script,omitempty"`
	Variables      []Variable     `json:"variables,omitempty" yaml:"variables,omitempty"`
	Tags           []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Cache          []Cache        `json:"cache,omitempty" yaml:"cache,omitempty"`
	Environment    *Environment   `json:"environment,omitempty" yaml:"environment,omitempty"`
	Trigger        *Trigger       `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	Parallel       *Parallel      `json:"parallel,omitempty" yaml:"parallel,omitempty"`
	Interruptible  *bool          `json:"interruptible,omitempty" yaml:"interruptible,omitempty"`
	Timeout        string         `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	RetryMax       int            `json:"retry_max,omitempty" yaml:"retry_max,omitempty"`
	RetryWhen      []string       `json:"retry_when,omitempty" yaml:"retry_when,omitempty"`
	Coverage       string         `json:"coverage,omitempty" yaml:"coverage,omitempty"`
	ResourceGroup  string         `json:"resource_group,omitempty" yaml:"resource_group,omitempty"`
	Options        map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
	PartitionID    int64          `json:"partition_id" yaml:"partition_id"`
}

// Need is an edge to an instance the job waits for.
type Need struct {
	Name      string `json:"name" yaml:"name"`
	Artifacts bool   `json:"artifacts" yaml:"artifacts"`
	Optional  bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// Variable is a job variable after precedence and expansion.
type Variable struct {
	Key    string `json:"key" yaml:"key"`
	Value  string `json:"value" yaml:"value"`
	Raw    bool   `json:"raw,omitempty" yaml:"raw,omitempty"`
	Masked bool   `json:"masked,omitempty" yaml:"masked,omitempty"`
	File   bool   `json:"file,omitempty" yaml:"file,omitempty"`
	Source string `json:"source" yaml:"source"`
}

// Cache is a cache entry with its key derived.
type Cache struct {
	Key          string   `json:"key" yaml:"key"`
	Paths        []string `json:"paths,omitempty" yaml:"paths,omitempty"`
	Policy       string   `json:"policy,omitempty" yaml:"policy,omitempty"`
	When         string   `json:"when,omitempty" yaml:"when,omitempty"`
	Untracked    bool     `json:"untracked,omitempty" yaml:"untracked,omitempty"`
	Unprotect    bool     `json:"unprotect,omitempty" yaml:"unprotect,omitempty"`
	FallbackKeys []string `json:"fallback_keys,omitempty" yaml:"fallback_keys,omitempty"`
}

// Environment is the expanded deployment target.
type Environment struct {
	Name   string `json:"name" yaml:"name"`
	Slug   string `json:"slug" yaml:"slug"`
	URL    string `json:"url,omitempty" yaml:"url,omitempty"`
	Action string `json:"action" yaml:"action"`
	Tier   string `json:"tier,omitempty" yaml:"tier,omitempty"`
	OnStop string `json:"on_stop,omitempty" yaml:"on_stop,omitempty"`
}

// Trigger describes a downstream pipeline and the variables it receives.
type Trigger struct {
	Project   string         `json:"project,omitempty" yaml:"project,omitempty"`
	Branch    string         `json:"branch,omitempty" yaml:"branch,omitempty"`
	Strategy  string         `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Include   any            `json:"include,omitempty" yaml:"include,omitempty"`
	Variables []Variable     `json:"variables,omitempty" yaml:"variables,omitempty"`
	Forward   map[string]any `json:"forward,omitempty" yaml:"forward,omitempty"`
}

// Parallel records which instance of a parallel job this is.
type Parallel struct {
	Index  int               `json:"index" yaml:"index"`
	Total  int               `json:"total" yaml:"total"`
	Matrix map[string]string `json:"matrix,omitempty" yaml:"matrix,omitempty"`
}

// Jobs returns every job in stage order.
func (g *Graph) Jobs() []*Job {
	if g == nil {
		return nil
	}
	var out []*Job
	for _, s := range g.Stages {
		out = append(out, s.Jobs...)
	}
	return out
}

// Job returns the instance named name, or nil.
func (g *Graph) Job(name string) *Job {
	for _, j := range g.Jobs() {
		if j.Name == name {
			return j
		}
	}
	return nil
}

// JobNames returns the instance names in stage order.
func (g *Graph) JobNames() []string {
	jobs := g.Jobs()
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.Name
	}
	return out
}

// Size returns the number of jobs.
func (g *Graph) Size() int {
	return len(g.Jobs())
}

// Variable returns the value of key for the job.
func (j *Job) Variable(key string) (string, bool) {
	for _, v := range j.Variables {
		if v.Key == key {
			return v.Value, true
		}
	}
	return "", false
}

// SetPartition stamps id on the graph, its stages and its jobs.
func (g *Graph) SetPartition(id int64) {
	g.PartitionID = id
	for _, s := range g.Stages {
		s.PartitionID = id
		for _, j := range s.Jobs {
			j.PartitionID = id
		}
	}
}
