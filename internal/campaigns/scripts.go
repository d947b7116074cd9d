package campaigns

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ccops/five9cm/internal/credentials"
	"github.com/ccops/five9cm/internal/pwsh"
)

// Credentials reach the interpreter through these variables and are removed
// from its environment as soon as the script has read them.
const (
	EnvUsername = "FIVE9CM_USERNAME"
	EnvPassword = "FIVE9CM_PASSWORD"
)

func credentialEnv(creds credentials.Credentials) map[string]string {
	return map[string]string{
		EnvUsername: creds.Username,
		EnvPassword: creds.Password,
	}
}

func connectPreamble(module string) string {
	var b strings.Builder
	b.WriteString("$ErrorActionPreference = 'Stop'\n")
	b.WriteString("$ProgressPreference = 'SilentlyContinue'\n")
	fmt.Fprintf(&b, "$five9User = $env:%s\n", EnvUsername)
	fmt.Fprintf(&b, "$five9Pass = $env:%s\n", EnvPassword)
	fmt.Fprintf(&b, "Remove-Item Env:%s -ErrorAction SilentlyContinue\n", EnvUsername)
	fmt.Fprintf(&b, "Remove-Item Env:%s -ErrorAction SilentlyContinue\n", EnvPassword)
	if module = strings.TrimSpace(module); module != "" {
		fmt.Fprintf(&b, "Import-Module '%s'\n", pwsh.EscapeLiteral(module))
	}
	b.WriteString("$secpasswd = ConvertTo-SecureString $five9Pass -AsPlainText -Force\n")
	b.WriteString("$creds = New-Object System.Management.Automation.PSCredential ($five9User, $secpasswd)\n")
	b.WriteString("Connect-Five9AdminWebService -Credential $creds | Out-Null\n")
	return b.String()
}

func fetchScript(module string) string {
	quoted := make([]string, 0, len(Types))
	for _, t := range Types {
		quoted = append(quoted, "'"+t+"'")
	}

	var b strings.Builder
	b.WriteString(connectPreamble(module))
	fmt.Fprintf(&b, "$types = @(%s)\n", strings.Join(quoted, ","))
	b.WriteString("$all = @()\n")
	b.WriteString("foreach ($t in $types) {\n")
	b.WriteString("  try { $all += Get-Five9Campaign -Type $t } catch {}\n")
	b.WriteString("}\n")
	b.WriteString("$rows = @($all | ForEach-Object {\n")
	b.WriteString("  [pscustomobject]@{\n")
	b.WriteString("    Id = $_.id\n")
	b.WriteString("    Name = $_.name\n")
	b.WriteString("    State = $_.state.ToString()\n")
	b.WriteString("    Type = $_.type.ToString()\n")
	b.WriteString("  }\n")
	b.WriteString("})\n")
	b.WriteString("ConvertTo-Json -InputObject $rows -Depth 3\n")
	return pwsh.Block(b.String())
}

func actionScript(module string, names []string, action Action) (string, error) {
	encoded, err := json.Marshal(names)
	if err != nil {
		return "", fmt.Errorf("encode campaign names: %w", err)
	}

	command := "Start-Five9Campaign"
	if action == ActionStop {
		command = "Stop-Five9Campaign -Force $true"
	}

	var b strings.Builder
	b.WriteString(connectPreamble(module))
	// Windows PowerShell emits a decoded array as a single object, so the list
	// must not be wrapped again before foreach enumerates it.
	fmt.Fprintf(&b, "$campaigns = ConvertFrom-Json '%s'\n", pwsh.EscapeLiteral(string(encoded)))
	b.WriteString("$results = @()\n")
	b.WriteString("foreach ($campaign in $campaigns) {\n")
	b.WriteString("  try {\n")
	fmt.Fprintf(&b, "    %s -Name $campaign | Out-Null\n", command)
	b.WriteString("    $results += [pscustomobject]@{Name = $campaign; Success = $true; Error = $null}\n")
	b.WriteString("  } catch {\n")
	b.WriteString("    $results += [pscustomobject]@{Name = $campaign; Success = $false; Error = $_.Exception.Message}\n")
	b.WriteString("  }\n")
	b.WriteString("}\n")
	b.WriteString("ConvertTo-Json -InputObject @($results) -Depth 3\n")
	return pwsh.Block(b.String()), nil
}
