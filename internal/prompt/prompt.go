// Package prompt asks the operator for parameter values, template choices and
// confirmations. The survey driver talks to a terminal; tests substitute a
// scripted Driver.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"contractgen/pkg/contractapi"
)

// ErrAborted is returned when the operator interrupts a prompt.
var ErrAborted = errors.New("prompt: aborted")

// InputConfig configures a text prompt.
type InputConfig struct {
	Message   string
	Default   string
	Help      string
	Validator func(string) error
}

// ConfirmConfig configures a yes/no prompt.
type ConfirmConfig struct {
	Message string
	Default bool
	Help    string
}

// SelectConfig configures a single choice prompt.
type SelectConfig struct {
	Message      string
	Options      []string
	DefaultIndex int
	PageSize     int
}

// Driver renders prompts.
type Driver interface {
	Input(ctx context.Context, cfg InputConfig) (string, error)
	Confirm(ctx context.Context, cfg ConfirmConfig) (bool, error)
	Select(ctx context.Context, cfg SelectConfig) (int, error)
}

type surveyDriver struct {
	opts []survey.AskOpt
}

// NewSurvey returns a terminal driver. opts are passed to every question,
// e.g. survey.WithStdio.
func NewSurvey(opts ...survey.AskOpt) Driver {
	return &surveyDriver{opts: opts}
}

func (d *surveyDriver) Input(ctx context.Context, cfg InputConfig) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var out string
	q := &survey.Input{Message: cfg.Message, Default: cfg.Default, Help: cfg.Help}
	opts := d.opts
	if cfg.Validator != nil {
		opts = append(append([]survey.AskOpt{}, opts...), survey.WithValidator(func(ans any) error {
			s, _ := ans.(string)
			return cfg.Validator(s)
		}))
	}
	if err := survey.AskOne(q, &out, opts...); err != nil {
		return "", translate(err)
	}
	return out, nil
}

func (d *surveyDriver) Confirm(ctx context.Context, cfg ConfirmConfig) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var out bool
	q := &survey.Confirm{Message: cfg.Message, Default: cfg.Default, Help: cfg.Help}
	if err := survey.AskOne(q, &out, d.opts...); err != nil {
		return false, translate(err)
	}
	return out, nil
}

func (d *surveyDriver) Select(ctx context.Context, cfg SelectConfig) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(cfg.Options) == 0 {
		return -1, errors.New("prompt: nothing to select")
	}
	var out int
	q := &survey.Select{Message: cfg.Message, Options: cfg.Options}
	if cfg.PageSize > 0 {
		q.PageSize = cfg.PageSize
	}
	if cfg.DefaultIndex >= 0 && cfg.DefaultIndex < len(cfg.Options) {
		q.Default = cfg.Options[cfg.DefaultIndex]
	}
	if err := survey.AskOne(q, &out, d.opts...); err != nil {
		return 0, translate(err)
	}
	return out, nil
}

func translate(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return ErrAborted
	}
	return err
}

// Required rejects blank answers with the same message as parameter
// validation.
func Required(name string) func(string) error {
	return func(v string) error {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("the field %s is required", contractapi.ParameterLabel(name))
		}
		return nil
	}
}

// ParameterSetter receives collected values. *workflow.Session satisfies it.
type ParameterSetter interface {
	Parameters() []string
	Values() map[string]string
	SetParameter(name, value string) error
}

// CollectParameters asks for each blank parameter, or for every parameter
// when all is set. The current value is offered as the default.
func CollectParameters(ctx context.Context, d Driver, s ParameterSetter, all bool) error {
	values := s.Values()
	for _, name := range s.Parameters() {
		current := values[name]
		if !all && strings.TrimSpace(current) != "" {
			continue
		}
		v, err := d.Input(ctx, InputConfig{
			Message:   contractapi.ParameterLabel(name) + ":",
			Default:   current,
			Validator: Required(name),
		})
		if err != nil {
			return err
		}
		if err := s.SetParameter(name, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return nil
}

// ChooseTemplate lists templates by title and category and returns the
// chosen one.
func ChooseTemplate(ctx context.Context, d Driver, templates []contractapi.Template) (contractapi.Template, error) {
	if len(templates) == 0 {
		return contractapi.Template{}, errors.New("no templates available")
	}
	options := make([]string, len(templates))
	for i, t := range templates {
		options[i] = fmt.Sprintf("%s (%s)", t.Title, t.Category.Label())
	}
	i, err := d.Select(ctx, SelectConfig{Message: "Template:", Options: options, PageSize: 10})
	if err != nil {
		return contractapi.Template{}, err
	}
	if i < 0 || i >= len(templates) {
		return contractapi.Template{}, fmt.Errorf("prompt: selection %d out of range", i)
	}
	return templates[i], nil
}
