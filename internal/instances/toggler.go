package instances

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/charmbracelet/log"
)

// DefaultNamePattern matches the load generator fleet.
const DefaultNamePattern = "*sampleapp-load-generator*"

// Action is the operation applied to the matched instances.
type Action string

const (
	ActionStart Action = "start"
	ActionStop  Action = "stop"
)

// ParseAction validates an action string such as the ACTION env variable.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionStart:
		return ActionStart, nil
	case ActionStop:
		return ActionStop, nil
	default:
		return "", fmt.Errorf("invalid action '%s': expected start or stop", s)
	}
}

// SourceState is the state an instance must be in for the action to apply.
func (a Action) SourceState() string {
	if a == ActionStop {
		return string(types.InstanceStateNameRunning)
	}
	return string(types.InstanceStateNameStopped)
}

// PastTense renders the action for status messages.
func (a Action) PastTense() string {
	if a == ActionStop {
		return "stopped"
	}
	return "started"
}

// EC2API is the subset of the EC2 client used by Toggler.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	StartInstances(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
}

// Toggler starts or stops the instances whose Name tag matches a pattern.
type Toggler struct {
	api         EC2API
	namePattern string
}

// NewToggler creates a toggler for instances named like namePattern.
func NewToggler(api EC2API, namePattern string) *Toggler {
	if namePattern == "" {
		namePattern = DefaultNamePattern
	}
	return &Toggler{api: api, namePattern: namePattern}
}

// Toggle applies action to every matching instance in the opposite state
// and returns how many were affected. Finding none is not an error.
func (t *Toggler) Toggle(ctx context.Context, action Action) (int, error) {
	ids, err := t.findInstances(ctx, action.SourceState())
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		log.Info("No instances found", "pattern", t.namePattern, "state", action.SourceState())
		return 0, nil
	}

	switch action {
	case ActionStart:
		_, err = t.api.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: ids})
	case ActionStop:
		_, err = t.api.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: ids})
	default:
		return 0, fmt.Errorf("unsupported action '%s'", action)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to %s instances: %w", action, err)
	}

	log.Info("Toggled instances", "action", action, "count", len(ids), "instance_ids", ids)
	return len(ids), nil
}

func (t *Toggler) findInstances(ctx context.Context, state string) ([]string, error) {
	input := &ec2.DescribeInstancesInput{
		Filters: []types.Filter{
			{Name: aws.String("tag:Name"), Values: []string{t.namePattern}},
			{Name: aws.String("instance-state-name"), Values: []string{state}},
		},
	}

	var ids []string
	for {
		out, err := t.api.DescribeInstances(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to describe instances: %w", err)
		}
		for _, r := range out.Reservations {
			for _, inst := range r.Instances {
				if id := aws.ToString(inst.InstanceId); id != "" {
					ids = append(ids, id)
				}
			}
		}
		if aws.ToString(out.NextToken) == "" {
			break
		}
		input.NextToken = out.NextToken
	}
	return ids, nil
}

// Response is the Lambda proxy-style result of a toggle.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Handle runs a toggle and shapes the outcome as a Response.
func (t *Toggler) Handle(ctx context.Context, action Action) (Response, error) {
	n, err := t.Toggle(ctx, action)
	if err != nil {
		return Response{}, err
	}
	if n == 0 {
		return Response{StatusCode: 200, Body: "No instances found"}, nil
	}
	return Response{StatusCode: 200, Body: fmt.Sprintf("%s %d instances", action.PastTense(), n)}, nil
}
