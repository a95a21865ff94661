package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// EC2API is the subset of *ec2.Client the instance lifecycle tools call.
type EC2API interface {
	ec2.DescribeInstancesAPIClient
	StartInstances(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
}

// EC2 wraps the EC2 service client for the instance lifecycle tools.
type EC2 struct {
	api EC2API
}

func NewEC2(api EC2API) *EC2 {
	return &EC2{api: api}
}

// Instance is the subset of instance attributes the tools report.
type Instance struct {
	ID    string `json:"instance_id"`
	State string `json:"state"`
	Type  string `json:"instance_type"`
	Name  string `json:"name,omitempty"`
}

// StateChange is the result of a start or stop request.
type StateChange struct {
	ID       string `json:"instance_id"`
	Previous string `json:"previous_state"`
	Current  string `json:"current_state"`
}

func (e *EC2) DescribeInstances(ctx context.Context) ([]Instance, error) {
	var instances []Instance
	pages := ec2.NewDescribeInstancesPaginator(e.api, &ec2.DescribeInstancesInput{})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("ec2 DescribeInstances: %w", err)
		}
		for _, r := range page.Reservations {
			for _, in := range r.Instances {
				inst := Instance{ID: aws.ToString(in.InstanceId), Type: string(in.InstanceType)}
				if in.State != nil {
					inst.State = string(in.State.Name)
				}
				for _, tag := range in.Tags {
					if aws.ToString(tag.Key) == "Name" {
						inst.Name = aws.ToString(tag.Value)
					}
				}
				instances = append(instances, inst)
			}
		}
	}
	return instances, nil
}

func stateChange(action, id string, changes []ec2types.InstanceStateChange) (*StateChange, error) {
	if len(changes) == 0 {
		return nil, fmt.Errorf("ec2 %s: no state change reported for %s", action, id)
	}
	c := changes[0]
	out := &StateChange{ID: aws.ToString(c.InstanceId)}
	if c.PreviousState != nil {
		out.Previous = string(c.PreviousState.Name)
	}
	if c.CurrentState != nil {
		out.Current = string(c.CurrentState.Name)
	}
	return out, nil
}

func (e *EC2) StartInstance(ctx context.Context, id string) (*StateChange, error) {
	out, err := e.api.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: []string{id}})
	if err != nil {
		return nil, fmt.Errorf("ec2 StartInstances: %w", err)
	}
	return stateChange("StartInstances", id, out.StartingInstances)
}

func (e *EC2) StopInstance(ctx context.Context, id string) (*StateChange, error) {
	out, err := e.api.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: []string{id}})
	if err != nil {
		return nil, fmt.Errorf("ec2 StopInstances: %w", err)
	}
	return stateChange("StopInstances", id, out.StoppingInstances)
}

// --- tools ---

// ListEC2InstancesTool lists the account's instances in the configured region.
type ListEC2InstancesTool struct{ ec2 *EC2 }

func NewListEC2InstancesTool(ec2 *EC2) *ListEC2InstancesTool { return &ListEC2InstancesTool{ec2: ec2} }

func (t *ListEC2InstancesTool) Name() string { return "List EC2 Instances Tool" }
func (t *ListEC2InstancesTool) Description() string {
	return "Useful for listing the AWS EC2 instances of the account. It doesn't care what action input is. " +
		"It returns each instance's id, state, type and Name tag."
}
func (t *ListEC2InstancesTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{InputKey: {Type: "string", Description: "Ignored"}}, nil)
}

func (t *ListEC2InstancesTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return t.ec2.DescribeInstances(ctx)
}

func (t *ListEC2InstancesTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	instances, err := t.ec2.DescribeInstances(ctx)
	if err != nil {
		return "", err
	}
	if len(instances) == 0 {
		return "No EC2 instances found.", nil
	}
	lines := make([]string, len(instances))
	for i, in := range instances {
		lines[i] = fmt.Sprintf("%s  %s  %s  %s", in.ID, in.State, in.Type, in.Name)
	}
	return strings.Join(lines, "\n"), nil
}

// ChangeEC2StateTool starts or stops one instance.
type ChangeEC2StateTool struct {
	ec2   *EC2
	start bool
}

func NewStartEC2InstanceTool(ec2 *EC2) *ChangeEC2StateTool {
	return &ChangeEC2StateTool{ec2: ec2, start: true}
}

func NewStopEC2InstanceTool(ec2 *EC2) *ChangeEC2StateTool {
	return &ChangeEC2StateTool{ec2: ec2}
}

func (t *ChangeEC2StateTool) Name() string {
	if t.start {
		return "Start EC2 Instance Tool"
	}
	return "Stop EC2 Instance Tool"
}

func (t *ChangeEC2StateTool) Description() string {
	verb := "shutting down"
	if t.start {
		verb = "starting"
	}
	return "Useful for " + verb + " an AWS EC2 instance. The action input must be the instance id, e.g. i-0123456789abcdef0."
}

func (t *ChangeEC2StateTool) Parameters() map[string]any {
	return singleInput("EC2 instance id")
}

func (t *ChangeEC2StateTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	id := strings.Trim(strings.TrimSpace(ArgsString(args, InputKey)), "\"'`")
	if !strings.HasPrefix(id, "i-") {
		return "", fmt.Errorf("%q is not an EC2 instance id", id)
	}
	var (
		change *StateChange
		err    error
	)
	if t.start {
		change, err = t.ec2.StartInstance(ctx, id)
	} else {
		change, err = t.ec2.StopInstance(ctx, id)
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Instance %s: %s -> %s", change.ID, change.Previous, change.Current), nil
}
