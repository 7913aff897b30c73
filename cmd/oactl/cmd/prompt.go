package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

var errNoTerminal = errors.New("stdin is not a terminal")

// stdio returns survey's terminal streams when the app reads from the
// process's real stdin.
func (a *app) stdio() (survey.AskOpt, error) {
	f, ok := a.stdin.(*os.File)
	if !ok {
		return nil, errNoTerminal
	}
	return survey.WithStdio(f, os.Stderr, os.Stderr), nil
}

func (a *app) askInput(message string) (string, error) {
	opt, err := a.stdio()
	if err != nil {
		return "", err
	}
	var v string
	err = survey.AskOne(&survey.Input{Message: message}, &v, opt, survey.WithValidator(survey.Required))
	return v, promptErr(err)
}

func (a *app) askPassword(message string) (string, error) {
	opt, err := a.stdio()
	if err != nil {
		return "", err
	}
	var v string
	err = survey.AskOne(&survey.Password{Message: message}, &v, opt, survey.WithValidator(survey.Required))
	return v, promptErr(err)
}

// confirm asks a yes/no question. assumeYes skips the prompt.
func (a *app) confirm(message string, assumeYes bool) (bool, error) {
	if assumeYes {
		return true, nil
	}
	opt, err := a.stdio()
	if err != nil {
		return false, fmt.Errorf("%w, pass --yes to confirm", err)
	}
	var ok bool
	err = survey.AskOne(&survey.Confirm{Message: message}, &ok, opt)
	return ok, promptErr(err)
}

func promptErr(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return errors.New("interrupted")
	}
	return err
}

// readSecret reads one line from r, for --password-stdin.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password from stdin: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password on stdin")
	}
	return line, nil
}
