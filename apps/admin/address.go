package main

import (
	"net/mail"
	"strings"

	"github.com/pkg/errors"
)

func parseAddresses(s string) ([]mail.Address, error) {
	list, err := mail.ParseAddressList(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.Wrapf(err, "parsing addresses %q", s)
	}
	addrs := make([]mail.Address, 0, len(list))
	for _, a := range list {
		addrs = append(addrs, *a)
	}
	return addrs, nil
}
