package main

import (
	"errors"
	"strings"
)

// accountsFlag collects a repeatable -a/-account flag. A single value may
// also hold a comma separated list.
type accountsFlag []string

func (a *accountsFlag) String() string {
	if a == nil {
		return ""
	}
	return strings.Join(*a, ",")
}

func (a *accountsFlag) Set(value string) error {
	added := 0
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*a = append(*a, part)
			added++
		}
	}
	if added == 0 {
		return errors.New("empty account")
	}
	return nil
}
