package provisioning

import (
	"fmt"
	"strings"

	"github.com/customeros/domainstack/interfaces"
	"github.com/customeros/domainstack/internal/enum"
)

type registrarGuide struct {
	name    string
	path    string
	helpURL string
}

var registrarGuides = map[enum.Registrar]registrarGuide{
	enum.RegistrarGoDaddy: {
		name:    "GoDaddy",
		path:    "My Products > Domains > DNS > Nameservers > Change Nameservers > I'll use my own nameservers",
		helpURL: "https://www.godaddy.com/help/change-nameservers-for-my-domains-664",
	},
	enum.RegistrarNamecheap: {
		name:    "Namecheap",
		path:    "Domain List > Manage > Nameservers > Custom DNS",
		helpURL: "https://www.namecheap.com/support/knowledgebase/article.aspx/767/10/how-to-change-dns-for-a-domain/",
	},
	enum.RegistrarGoogle: {
		name: "Google Domains",
		path: "My domains > Manage > DNS > Custom name servers",
	},
	enum.RegistrarSquarespace: {
		name: "Squarespace Domains",
		path: "Domains > DNS > Domain Nameservers > Use Custom Nameservers",
	},
	enum.RegistrarPorkbun: {
		name: "Porkbun",
		path: "Domain Management > Details > Authoritative Nameservers > Edit",
	},
}

// RegistrarInstructionsFor describes how to point the domain at nameservers at the given registrar.
func RegistrarInstructionsFor(registrar enum.Registrar, domain string, nameservers []string) *interfaces.RegistrarInstructions {
	instructions := &interfaces.RegistrarInstructions{
		Registrar:   registrar,
		Nameservers: append([]string{}, nameservers...),
	}
	list := strings.Join(nameservers, ", ")

	if registrar == enum.RegistrarCloudflare {
		instructions.Steps = []string{
			fmt.Sprintf("%s is registered with Cloudflare, which always uses Cloudflare nameservers.", domain),
			fmt.Sprintf("Make sure the domain is added to the Cloudflare account that owns the zone, and that it lists %s.", list),
			"No change is needed at the registrar; nameserver verification will pass once the zone is active.",
		}
		return instructions
	}

	guide, ok := registrarGuides[registrar]
	if !ok {
		instructions.Registrar = enum.RegistrarOther
		instructions.Steps = []string{
			fmt.Sprintf("Sign in to the registrar where %s was purchased.", domain),
			"Open the nameserver settings for the domain and choose custom nameservers.",
			fmt.Sprintf("Replace the existing nameservers with %s.", list),
			"Save the changes. Nameserver updates can take up to 48 hours to propagate.",
		}
		return instructions
	}

	instructions.HelpURL = guide.helpURL
	instructions.Steps = []string{
		fmt.Sprintf("Sign in to %s and open %s.", guide.name, domain),
		fmt.Sprintf("Go to %s.", guide.path),
		fmt.Sprintf("Replace the existing nameservers with %s.", list),
		"Save the changes. Nameserver updates can take up to 48 hours to propagate.",
	}
	return instructions
}
