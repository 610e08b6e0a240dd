// Package harness runs end-to-end campaign scenarios.
//
// A scenario seeds a recipient list, a suppression list and an earlier send
// log, runs one pass of the campaign runner against a recording mailer and a
// fake clock, then checks the outcome.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: company_cap
//	description: "At most two attempts per company per day"
//	now: "2026-03-09T09:00:00Z"
//	options:
//	  daily_limit: 10
//	  max_per_company: 2
//	  send_interval: 180s
//	roster: |
//	  email,email_status,first_name,organization_name,title
//	  ada@acme.example,verified,Ada,Acme,CDO
//	suppressed:
//	  - blocked@acme.example
//	history:
//	  - email: old@acme.example
//	    company: Acme
//	    day: "2026-03-02"
//	    status: sent
//	failures:
//	  bob@acme.example:
//	    status: 503
//	    body: "Service Unavailable"
//	expect:
//	  outcome: completed
//	  sent: 1
//	  contacted: [ada@acme.example]
//
// # Deterministic Execution
//
// Every scenario runs in a fresh SQLite database in a temporary directory,
// with run ids run-1, run-2 and so on and a fake clock that advances by the
// requested duration instead of sleeping. The resulting snapshot is
// therefore stable and can be compared against a golden file.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/company_cap.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, err := range result.Errors {
//	        log.Println(err)
//	    }
//	}
package harness
