package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	"connected/pkg/types"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

// accounts is the part of the auth provider the admin commands drive
type accounts interface {
	FindIdentity(ctx context.Context, email string) (*types.Identity, error)
	AdminCreateUser(ctx context.Context, email, password string, metadata types.Metadata) (*types.Identity, error)
	AdminUpdateUserByID(ctx context.Context, id, password string, metadata types.Metadata) (*types.Identity, error)
}

type identityLister interface {
	ListIdentities(ctx context.Context) ([]types.Identity, error)
}

type commandLine struct {
	accounts   accounts
	identities identityLister
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  listusers                                  - list identities")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL                 - reset a user's password")
	fmt.Fprintln(cli.out, "  adduser -email EMAIL -role teacher|student - create or update a user")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserRole := addUserCmd.String("role", "", "teacher or student")

	switch args[1] {
	case "listusers":
		return cli.listUsers()

	case "resetpassword":
		resetPasswordCmd.SetOutput(cli.out)
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "adduser":
		addUserCmd.SetOutput(cli.out)
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		role := types.Role(*addUserRole)
		if *addUserEmail == "" || !role.Valid() {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserEmail, role, pwd)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) listUsers() error {
	identities, err := cli.identities.ListIdentities(context.Background())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tROLE\tPASSWORD SET\tCREATED")
	for _, identity := range identities {
		role := string(identity.Role)
		if role == "" {
			role = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", identity.Email, role, identity.PasswordSet, identity.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}
