package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rkoyama/glmbot/internal/perm"
)

func init() {
	permCmd := &cobra.Command{
		Use:   "perm",
		Short: "Manage capabilities",
	}

	grant := &cobra.Command{
		Use:   "grant <actor> <capability>",
		Short: "Grant a capability to an actor",
		Args:  cobra.ExactArgs(2),
		Run:   func(cmd *cobra.Command, args []string) { changeGrant(cmd, args, true) },
	}
	grant.Flags().String("as", "", "Granting actor ID (required, must hold manage-permissions)")
	grant.MarkFlagRequired("as")

	revoke := &cobra.Command{
		Use:   "revoke <actor> <capability>",
		Short: "Revoke an explicit capability grant",
		Args:  cobra.ExactArgs(2),
		Run:   func(cmd *cobra.Command, args []string) { changeGrant(cmd, args, false) },
	}
	revoke.Flags().String("as", "", "Revoking actor ID (required, must hold manage-permissions)")
	revoke.MarkFlagRequired("as")

	show := &cobra.Command{
		Use:   "show <actor>",
		Short: "Show an actor's effective capabilities",
		Args:  cobra.ExactArgs(1),
		Run:   runPermShow,
	}

	roleSet := &cobra.Command{
		Use:   "role-set <role> <capability>...",
		Short: "Define a role's capability set, replacing any previous set",
		Args:  cobra.MinimumNArgs(2),
		Run:   runRoleSet,
	}

	roleRm := &cobra.Command{
		Use:   "role-rm <role>",
		Short: "Delete a role definition",
		Args:  cobra.ExactArgs(1),
		Run:   runRoleRm,
	}

	permCmd.AddCommand(grant, revoke, show, roleSet, roleRm)
	RootCmd.AddCommand(permCmd)
}

func newResolver(cmd *cobra.Command) (*perm.Resolver, func()) {
	cfg := loadConfig()
	s := openStore(cfg)
	r, err := perm.NewResolver(s, nil, cfg.SuperUsers, cfg.DefaultCapabilities, newLogger())
	if err != nil {
		s.Close()
		exitErr("permission resolver", err)
	}
	return r, func() { s.Close() }
}

func changeGrant(cmd *cobra.Command, args []string, grant bool) {
	granter, _ := cmd.Flags().GetString("as")
	actor := args[0]

	capability, err := perm.ParseCapability(args[1])
	if err != nil {
		exitErr("perm", err)
	}

	r, done := newResolver(cmd)
	defer done()

	if grant {
		err = r.Grant(cmd.Context(), granter, actor, capability)
	} else {
		err = r.Revoke(cmd.Context(), granter, actor, capability)
	}
	if err != nil {
		exitErr("perm", err)
	}
	fmt.Println("ok")
}

func runPermShow(cmd *cobra.Command, args []string) {
	r, done := newResolver(cmd)
	defer done()

	caps, err := r.Effective(cmd.Context(), args[0])
	if err != nil {
		exitErr("perm show", err)
	}

	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = c.String()
	}
	fmt.Println(strings.Join(names, " "))
}

func runRoleSet(cmd *cobra.Command, args []string) {
	role := args[0]
	for _, name := range args[1:] {
		c, err := perm.ParseCapability(name)
		if err != nil {
			exitErr("role-set", err)
		}
		if c == perm.Bypass {
			exitErr("role-set", fmt.Errorf("bypass is set via configuration only"))
		}
	}

	s := openStore(loadConfig())
	defer s.Close()

	if err := s.SetRoleCaps(cmd.Context(), role, args[1:]); err != nil {
		exitErr("role-set", err)
	}
	fmt.Println("ok")
}

func runRoleRm(cmd *cobra.Command, args []string) {
	s := openStore(loadConfig())
	defer s.Close()

	if err := s.DeleteRole(cmd.Context(), args[0]); err != nil {
		exitErr("role-rm", err)
	}
	fmt.Println("ok")
}
